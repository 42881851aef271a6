// Package trial содержит чистые функции расчёта пробного периода подписки.
//
// Все функции принимают явные отметки времени и не имеют побочных эффектов.
// Дни считаются целиком, с округлением вниз: начатый, но не законченный день
// не считается израсходованным.
package trial

import (
	"errors"
	"time"
)

// ErrInvalidTimestamp возвращается при некорректной строке времени.
// Кривой ввод отклоняется, а не приводится к нулю, чтобы не раздавать
// бесплатные дни триала через битые данные.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

const hoursPerDay = 24

// ConsumedDays возвращает число целых суток, прошедших с startDate до now,
// ограниченное сверху длиной триала trialDays. Нулевая или будущая дата
// начала означает, что ничего не израсходовано.
func ConsumedDays(startDate, now time.Time, trialDays int) int {
	if startDate.IsZero() || startDate.After(now) {
		return 0
	}
	days := int(now.Sub(startDate).Hours() / hoursPerDay)
	if days > trialDays {
		return trialDays
	}
	return days
}

// Completed сообщает, завершён ли пробный период: true, когда now >= trialEndDate.
// Граничный момент считается завершением. Нулевая дата окончания означает,
// что триала не было, и завершать нечего.
func Completed(trialEndDate, now time.Time) bool {
	if trialEndDate.IsZero() {
		return false
	}
	return !now.Before(trialEndDate)
}

// RemainingDays возвращает число целых суток до конца пробного периода,
// 0 — если период уже завершён.
func RemainingDays(trialEndDate, now time.Time) int {
	if Completed(trialEndDate, now) {
		return 0
	}
	return int(trialEndDate.Sub(now).Hours() / hoursPerDay)
}

// ParseTimestamp разбирает отметку времени в формате RFC3339.
// Любой другой формат отклоняется с ErrInvalidTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	return ts, nil
}
