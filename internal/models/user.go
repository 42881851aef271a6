// Package models содержит доменную модель пользователя системы.
// Учётные записи создаёт внешний провайдер аутентификации; здесь хранятся
// только данные, нужные биллингу, включая денормализованные флаги подписки.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
// Флаги биллинга изменяются только сервисом жизненного цикла подписки.
type User struct {
	UID                     string     // Уникальный идентификатор пользователя
	Email                   string     // Электронная почта (уникальная, в нижнем регистре)
	Name                    string     // Отображаемое имя
	PasswordHash            string     // Хэш пароля пользователя
	Subscribed              bool       // Есть действующая подписка
	OnTrial                 bool       // Подписка в пробном периоде
	TrialEndDate            *time.Time // Дата истечения пробного периода
	HadPreviousSubscription bool       // Ранее уже оформлял подписку
	TrialCompleted          bool       // Пробный период был израсходован полностью
	TrialConsumedDays       int        // Израсходованные дни триала на момент последней отмены
	LastCancellationDate    *time.Time // Дата последней отмены подписки
	CreatedAt               time.Time  // Дата создания записи
}
