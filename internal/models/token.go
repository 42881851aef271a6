package models

import "time"

// VerificationToken — одноразовый токен восстановления пароля.
// Токен валиден, пока запись существует и now < Expires; использование
// или обнаруженное при использовании истечение удаляют запись.
type VerificationToken struct {
	ID         int
	Identifier string    // Email, для которого выписан токен
	Token      string    // Случайное неугадываемое значение
	Expires    time.Time // Момент истечения
	CreatedAt  time.Time
}
