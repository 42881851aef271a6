// Package models содержит доменные структуры биллинга: подписку, пользователя
// и токен восстановления пароля, а также вспомогательные типы для JSON-запросов.
package models

import "time"

// Статусы подписки. Статус cancelled терминальный: запись с этим статусом
// больше не изменяется и хранится как аудит.
const (
	StatusTrialing  = "trialing"
	StatusActive    = "active"
	StatusCancelled = "cancelled"

	// StatusNone возвращается при оценке статуса, когда у пользователя
	// нет ни одной неотменённой подписки. Это не ошибка.
	StatusNone = "none"
)

// LiveStatuses — статусы, при которых подписка считается действующей.
// Используется проверкой фингерпринтов и ограничением "одна живая подписка
// на пользователя".
var LiveStatuses = []string{StatusTrialing, StatusActive}

// Subscription представляет запись подписки, создаваемую при оформлении.
// SubscriptionID назначается платёжным провайдером; Fingerprint — идентификатор
// устройства, снятый на клиенте в момент оформления.
type Subscription struct {
	ID                int        // Внутренний ID записи
	SubscriptionID    string     // ID подписки у платёжного провайдера
	UserUID           string     // Владелец (1:1 среди живых подписок)
	Status            string     // trialing | active | cancelled
	Plan              string     // Идентификатор тарифа
	Price             float64    // Цена за период
	Currency          string     // Валюта тарифа
	PaymentMethod     string     // Метка способа оплаты
	StartDate         time.Time  // Дата начала подписки
	TrialEndDate      time.Time  // Дата окончания пробного периода, >= StartDate
	Fingerprint       string     // Отпечаток устройства на момент оформления
	CancelledAt       *time.Time // Момент отмены, для cancelled
	TrialConsumedDays int        // Израсходованные дни триала на момент отмены
	CreatedAt         time.Time  // Серверная отметка создания записи
}

// BillingFlags — денормализованные флаги биллинга на записи пользователя.
// Источник истины — запись Subscription; флаги пересчитываются из неё
// при каждой оценке статуса.
type BillingFlags struct {
	Subscribed              bool
	OnTrial                 bool
	TrialEndDate            *time.Time
	HadPreviousSubscription bool
	TrialCompleted          bool
	TrialConsumedDays       int
	LastCancellationDate    *time.Time
}

// SubscriptionStatus — результат оценки текущего состояния биллинга пользователя.
type SubscriptionStatus struct {
	Status             string     `json:"status"`
	Subscribed         bool       `json:"subscribed"`
	OnTrial            bool       `json:"on_trial"`
	TrialEndDate       *time.Time `json:"trial_end_date,omitempty"`
	TrialDaysRemaining int        `json:"trial_days_remaining"`
	SubscriptionID     string     `json:"subscription_id,omitempty"`
	Plan               string     `json:"plan,omitempty"`
}

// FraudCheckResult — результат проверки фингерпринта на повторное
// использование пробного периода. Сигнал совещательный: он никогда
// сам по себе не блокирует оформление.
type FraudCheckResult struct {
	Suspicious            bool
	ExistingSubscriptions []*Subscription
}

// DummyStartRequest используется для приёма данных из JSON-запроса на оформление
// подписки, прежде чем передать их в бизнес-логику.
type DummyStartRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required"` // ID подписки у провайдера
	OrderID        string `json:"order_id" validate:"required"`        // ID заказа у провайдера
	Fingerprint    string `json:"fingerprint"`                         // Отпечаток устройства, может отсутствовать
}
