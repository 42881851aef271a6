// Package fraud реализует проверку фингерпринта устройства на повторное
// использование пробного периода. Результат совещательный: оформление
// подписки никогда не блокируется этой проверкой.
package fraud

import (
	"context"
	"log/slog"

	"github.com/nextgig-app/billing-service/internal/lib/sl"
	"github.com/nextgig-app/billing-service/internal/models"
)

// SubscriptionLister отдаёт живые подписки с заданным фингерпринтом.
type SubscriptionLister interface {
	ListLiveSubscriptionsByFingerprint(ctx context.Context, fingerprint string) ([]*models.Subscription, error)
}

// Service проверяет фингерпринты при оформлении подписки.
type Service struct {
	repo SubscriptionLister
	log  *slog.Logger
}

// New создает сервис проверки фингерпринтов.
func New(repo SubscriptionLister, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Check ищет живые подписки других пользователей с тем же фингерпринтом.
// Пустой фингерпринт и ошибка хранилища дают чистый результат: клиент мог
// не прислать отпечаток, а недоступность проверки не повод отказывать
// добросовестному пользователю в оформлении.
func (s *Service) Check(ctx context.Context, fingerprint, excludeUserUID string) models.FraudCheckResult {
	if fingerprint == "" {
		return models.FraudCheckResult{}
	}

	subs, err := s.repo.ListLiveSubscriptionsByFingerprint(ctx, fingerprint)
	if err != nil {
		s.log.Warn("fingerprint check unavailable, allowing signup",
			slog.String("fingerprint", fingerprint), sl.Err(err))
		return models.FraudCheckResult{}
	}

	var others []*models.Subscription
	for _, sub := range subs {
		if sub.UserUID != excludeUserUID {
			others = append(others, sub)
		}
	}
	if len(others) == 0 {
		return models.FraudCheckResult{}
	}

	s.log.Warn("fingerprint already linked to a live subscription",
		slog.String("fingerprint", fingerprint),
		slog.Int("matches", len(others)))

	return models.FraudCheckResult{
		Suspicious:            true,
		ExistingSubscriptions: others,
	}
}
