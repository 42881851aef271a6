// Package subscription реализует жизненный цикл подписки: оценку текущего
// статуса, оформление с учётом пробного периода, отмену через платёжного
// провайдера и обработку событий провайдера.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextgig-app/billing-service/internal/cache"
	"github.com/nextgig-app/billing-service/internal/config"
	"github.com/nextgig-app/billing-service/internal/lib/sl"
	"github.com/nextgig-app/billing-service/internal/lib/trial"
	"github.com/nextgig-app/billing-service/internal/models"
	"github.com/nextgig-app/billing-service/internal/paymentprovider"
	"github.com/nextgig-app/billing-service/internal/storage"
)

// Ошибки бизнес-логики, на которые опираются обработчики HTTP.
var (
	ErrAlreadySubscribed  = errors.New("user already has a live subscription")
	ErrNotFound           = errors.New("subscription not found")
	ErrUnauthorized       = errors.New("subscription belongs to another user")
	ErrCancellationFailed = errors.New("provider cancellation did not complete")

	// ErrUserFlagsStale возвращается из Start вместе с непустым статусом:
	// подписка создана, но второй шаг (запись флагов пользователя) не
	// применился и будет довыполнен ближайшей оценкой статуса.
	ErrUserFlagsStale = errors.New("user flags update did not apply")
)

// Окно после отмены, в течение которого возобновляется частично
// использованный пробный период.
const resumeWindow = 30 * 24 * time.Hour

const statusCacheTTL = time.Minute

// Repository операции хранилища, нужные жизненному циклу подписки.
type Repository interface {
	CreateSubscription(ctx context.Context, sub models.Subscription) (int, error)
	GetLiveSubscriptionByUserUID(ctx context.Context, userUID string) (*models.Subscription, error)
	GetSubscriptionByProviderID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID, status string,
		cancelledAt *time.Time, trialConsumedDays *int) error
	ListCancelledSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error)
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	UpdateUserBillingFlags(ctx context.Context, userUID string, flags models.BillingFlags) error
}

// FraudChecker проверяет фингерпринт на повторное использование триала.
type FraudChecker interface {
	Check(ctx context.Context, fingerprint, excludeUserUID string) models.FraudCheckResult
}

// PaymentProvider операции платёжного провайдера.
type PaymentProvider interface {
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
	GetSubscription(ctx context.Context, subscriptionID string) (*paymentprovider.SubscriptionDetails, error)
}

// Cache кэш статуса биллинга.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Service сервис жизненного цикла подписки.
type Service struct {
	repo     Repository
	fraud    FraudChecker
	provider PaymentProvider
	cache    Cache
	log      *slog.Logger
	billing  config.Billing

	now func() time.Time
}

// New создает сервис жизненного цикла подписки.
func New(repo Repository, fraud FraudChecker, provider PaymentProvider,
	c Cache, log *slog.Logger, billing config.Billing) *Service {
	return &Service{
		repo:     repo,
		fraud:    fraud,
		provider: provider,
		cache:    c,
		log:      log,
		billing:  billing,
		now:      time.Now,
	}
}

// EvaluateStatus возвращает текущее состояние биллинга пользователя.
// Отсутствие подписки — не ошибка, а статус none. Подписка в статусе
// trialing с истекшим пробным периодом продвигается в active прямо
// при чтении; денормализованные флаги пользователя пересчитываются
// из записи подписки при каждом вызове.
func (s *Service) EvaluateStatus(ctx context.Context, userUID string) (*models.SubscriptionStatus, error) {
	const op = "services.subscription.EvaluateStatus"

	cacheKey := cache.BillingStatusKey(userUID)
	var cached models.SubscriptionStatus
	found, err := s.cache.Get(ctx, cacheKey, &cached)
	if err != nil {
		s.log.Warn("status cache read failed", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	now := s.now()

	sub, err := s.repo.GetLiveSubscriptionByUserUID(ctx, userUID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var status models.SubscriptionStatus
	if sub == nil {
		status = models.SubscriptionStatus{Status: models.StatusNone}
	} else {
		if sub.Status == models.StatusTrialing && trial.Completed(sub.TrialEndDate, now) {
			if err := s.repo.UpdateSubscriptionStatus(ctx, sub.SubscriptionID,
				models.StatusActive, nil, nil); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			sub.Status = models.StatusActive
			transitionsTotal.WithLabelValues(transitionPromoted).Inc()
			s.log.Info("trial completed, subscription promoted",
				slog.String("subscription_id", sub.SubscriptionID))
		}
		status = s.statusFromSubscription(sub, now)
	}

	s.reconcileFlags(ctx, user, sub, now)

	if err := s.cache.Set(ctx, cacheKey, status, statusCacheTTL); err != nil {
		s.log.Warn("status cache write failed", sl.Err(err))
	}
	return &status, nil
}

// Start оформляет новую подписку. Пробный период выдаётся с учётом истории
// пользователя и сигнала проверки фингерпринта: подозрительным оформлениям
// триал не положен, но сама подписка не блокируется.
func (s *Service) Start(ctx context.Context, userUID string, req models.DummyStartRequest) (*models.SubscriptionStatus, error) {
	const op = "services.subscription.Start"

	if _, err := s.repo.GetLiveSubscriptionByUserUID(ctx, userUID); err == nil {
		return nil, ErrAlreadySubscribed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	trialDays := s.determineTrialEligibility(ctx, user, now)

	if result := s.fraud.Check(ctx, req.Fingerprint, userUID); result.Suspicious {
		trialDays = 0
		s.log.Warn("trial denied for suspicious fingerprint",
			slog.String("user_uid", userUID),
			slog.Int("existing_subscriptions", len(result.ExistingSubscriptions)))
	}

	sub := models.Subscription{
		SubscriptionID: req.SubscriptionID,
		UserUID:        userUID,
		Status:         models.StatusActive,
		Plan:           s.billing.Plan,
		Price:          s.billing.Price,
		Currency:       s.billing.Currency,
		PaymentMethod:  "paypal",
		StartDate:      now,
		TrialEndDate:   now,
		Fingerprint:    req.Fingerprint,
	}
	if trialDays > 0 {
		sub.Status = models.StatusTrialing
		sub.TrialEndDate = now.AddDate(0, 0, trialDays)
	}

	if _, err := s.repo.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case trialDays > 0 && user.HadPreviousSubscription:
		transitionsTotal.WithLabelValues(transitionTrialResumed).Inc()
	case trialDays > 0:
		transitionsTotal.WithLabelValues(transitionTrialStarted).Inc()
	default:
		transitionsTotal.WithLabelValues(transitionStartedActive).Inc()
	}

	flags := models.BillingFlags{
		Subscribed:              true,
		OnTrial:                 sub.Status == models.StatusTrialing,
		HadPreviousSubscription: user.HadPreviousSubscription,
		TrialCompleted:          user.TrialCompleted || trialDays == 0,
		TrialConsumedDays:       user.TrialConsumedDays,
		LastCancellationDate:    user.LastCancellationDate,
	}
	if sub.Status == models.StatusTrialing {
		flags.TrialEndDate = &sub.TrialEndDate
	}
	// Подписка уже создана; рассинхрон флагов чинится при следующей
	// оценке статуса, а вызывающему возвращается отдельная ошибка,
	// чтобы отличить "создано, флаги отстают" от "не создано".
	var flagsErr error
	if err := s.repo.UpdateUserBillingFlags(ctx, userUID, flags); err != nil {
		s.log.Error("user flags update failed after subscription create",
			slog.String("user_uid", userUID), sl.Err(err))
		flagsErr = fmt.Errorf("%s: %w: %w", op, ErrUserFlagsStale, err)
	}

	if err := s.cache.Invalidate(ctx, cache.BillingStatusKey(userUID)); err != nil {
		s.log.Warn("status cache invalidation failed", sl.Err(err))
	}

	s.log.Info("subscription started",
		slog.String("user_uid", userUID),
		slog.String("subscription_id", sub.SubscriptionID),
		slog.String("status", sub.Status),
		slog.Int("trial_days", trialDays))

	status := s.statusFromSubscription(&sub, now)
	return &status, flagsErr
}

// Cancel отменяет подписку. Сначала отмена у провайдера; локальное состояние
// меняется только после его подтверждения. Отмена без подтверждения провайдера
// оставила бы пользователя с действующим списанием и закрытым доступом.
func (s *Service) Cancel(ctx context.Context, userUID, subscriptionID string) error {
	const op = "services.subscription.Cancel"

	sub, err := s.repo.GetSubscriptionByProviderID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if sub.UserUID != userUID {
		return ErrUnauthorized
	}
	if sub.Status == models.StatusCancelled {
		return nil
	}

	if err := s.provider.CancelSubscription(ctx, subscriptionID, "User requested cancellation"); err != nil {
		s.log.Error("provider cancellation failed",
			slog.String("subscription_id", subscriptionID), sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, ErrCancellationFailed, err)
	}

	if err := s.markCancelled(ctx, sub, s.now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	transitionsTotal.WithLabelValues(transitionCancelled).Inc()

	s.log.Info("subscription cancelled",
		slog.String("user_uid", userUID),
		slog.String("subscription_id", subscriptionID))
	return nil
}

// RecordTrialCompletion продвигает подписку из trialing в active.
// Идемпотентна: отсутствие живой подписки и уже активная подписка — no-op.
func (s *Service) RecordTrialCompletion(ctx context.Context, userUID string) error {
	const op = "services.subscription.RecordTrialCompletion"

	sub, err := s.repo.GetLiveSubscriptionByUserUID(ctx, userUID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if sub.Status != models.StatusTrialing {
		return nil
	}
	// Раннее событие активации не должно обрезать идущий триал.
	if !trial.Completed(sub.TrialEndDate, s.now()) {
		s.log.Info("trial still in progress, promotion deferred",
			slog.String("subscription_id", sub.SubscriptionID))
		return nil
	}

	if err := s.repo.UpdateSubscriptionStatus(ctx, sub.SubscriptionID,
		models.StatusActive, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	transitionsTotal.WithLabelValues(transitionPromoted).Inc()

	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	flags := models.BillingFlags{
		Subscribed:              true,
		OnTrial:                 false,
		HadPreviousSubscription: user.HadPreviousSubscription,
		TrialCompleted:          true,
		TrialConsumedDays:       s.billing.TrialDays,
		LastCancellationDate:    user.LastCancellationDate,
	}
	if err := s.repo.UpdateUserBillingFlags(ctx, userUID, flags); err != nil {
		s.log.Error("user flags update failed after trial completion",
			slog.String("user_uid", userUID), sl.Err(err))
	}

	if err := s.cache.Invalidate(ctx, cache.BillingStatusKey(userUID)); err != nil {
		s.log.Warn("status cache invalidation failed", sl.Err(err))
	}

	s.log.Info("trial completion recorded", slog.String("user_uid", userUID))
	return nil
}

// ActivateByProvider продвигает подписку по событию активации от провайдера.
// Провайдер шлёт событие по своему ID подписки, владелец определяется локально.
// Вебхук не аутентифицируется, поэтому событие сверяется с фактическим
// состоянием подписки у провайдера перед любым изменением.
func (s *Service) ActivateByProvider(ctx context.Context, subscriptionID string) error {
	const op = "services.subscription.ActivateByProvider"

	sub, err := s.repo.GetSubscriptionByProviderID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	details, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if details.Status != paymentprovider.SubscriptionStatusActive {
		s.log.Warn("activation event contradicts provider state, ignored",
			slog.String("subscription_id", subscriptionID),
			slog.String("provider_status", details.Status))
		return nil
	}

	return s.RecordTrialCompletion(ctx, sub.UserUID)
}

// MarkCancelledByProvider фиксирует отмену, инициированную провайдером.
// Провайдер уже отменил подписку на своей стороне, обратного вызова нет.
func (s *Service) MarkCancelledByProvider(ctx context.Context, subscriptionID string) error {
	const op = "services.subscription.MarkCancelledByProvider"

	sub, err := s.repo.GetSubscriptionByProviderID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if sub.Status == models.StatusCancelled {
		return nil
	}

	// Та же сверка с провайдером, что и при активации: локальная отмена
	// по подделанному событию оставила бы пользователя без доступа при
	// продолжающихся списаниях.
	details, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch details.Status {
	case paymentprovider.SubscriptionStatusCancelled,
		paymentprovider.SubscriptionStatusSuspended,
		paymentprovider.SubscriptionStatusExpired:
	default:
		s.log.Warn("cancellation event contradicts provider state, ignored",
			slog.String("subscription_id", subscriptionID),
			slog.String("provider_status", details.Status))
		return nil
	}

	if err := s.markCancelled(ctx, sub, s.now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	transitionsTotal.WithLabelValues(transitionCancelledProvider).Inc()

	s.log.Info("subscription cancelled by provider",
		slog.String("subscription_id", subscriptionID))
	return nil
}

// markCancelled записывает отмену локально и обновляет флаги пользователя.
func (s *Service) markCancelled(ctx context.Context, sub *models.Subscription, now time.Time) error {
	consumed := trial.ConsumedDays(sub.StartDate, now, s.billing.TrialDays)
	cancelledAt := now

	err := s.repo.UpdateSubscriptionStatus(ctx, sub.SubscriptionID,
		models.StatusCancelled, &cancelledAt, &consumed)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	// Возобновлённый триал короче полного, поэтому истечение проверяется
	// по дате окончания этой подписки, а не только по счётчику дней.
	flags := models.BillingFlags{
		Subscribed:              false,
		OnTrial:                 false,
		HadPreviousSubscription: true,
		TrialCompleted: sub.Status == models.StatusActive ||
			consumed >= s.billing.TrialDays ||
			trial.Completed(sub.TrialEndDate, now),
		TrialConsumedDays:    consumed,
		LastCancellationDate: &cancelledAt,
	}
	if err := s.repo.UpdateUserBillingFlags(ctx, sub.UserUID, flags); err != nil {
		s.log.Error("user flags update failed after cancellation",
			slog.String("user_uid", sub.UserUID), sl.Err(err))
	}

	if err := s.cache.Invalidate(ctx, cache.BillingStatusKey(sub.UserUID)); err != nil {
		s.log.Warn("status cache invalidation failed", sl.Err(err))
	}
	return nil
}

// determineTrialEligibility возвращает число дней пробного периода для нового
// оформления. Полный триал для новых пользователей; завершённый триал повторно
// не выдаётся; отменившим недавно возобновляется остаток.
//
// Флаги пользователя денормализованы и могут отстать от записей подписок
// (второй шаг саги оформления или отмены мог не примениться). Когда флаги
// не показывают истории, запасным источником служит последняя отменённая
// подписка.
func (s *Service) determineTrialEligibility(ctx context.Context, user *models.User, now time.Time) int {
	hadPrevious := user.HadPreviousSubscription
	completed := user.TrialCompleted
	consumed := user.TrialConsumedDays
	lastCancellation := user.LastCancellationDate

	if !hadPrevious {
		history, err := s.repo.ListCancelledSubscriptions(ctx, user.UID)
		if err != nil {
			s.log.Warn("cancellation history lookup failed",
				slog.String("user_uid", user.UID), sl.Err(err))
		} else if len(history) > 0 {
			last := history[0]
			hadPrevious = true
			consumed = last.TrialConsumedDays
			lastCancellation = last.CancelledAt
			if last.CancelledAt != nil {
				completed = consumed >= s.billing.TrialDays ||
					trial.Completed(last.TrialEndDate, *last.CancelledAt)
			}
		}
	}

	if !hadPrevious {
		return s.billing.TrialDays
	}
	if completed {
		return 0
	}
	if lastCancellation != nil && now.Sub(*lastCancellation) <= resumeWindow {
		remaining := s.billing.TrialDays - consumed
		if remaining < 0 {
			remaining = 0
		}
		return remaining
	}
	return s.billing.TrialDays
}

// statusFromSubscription строит представление статуса для клиента.
func (s *Service) statusFromSubscription(sub *models.Subscription, now time.Time) models.SubscriptionStatus {
	status := models.SubscriptionStatus{
		Status:         sub.Status,
		Subscribed:     true,
		SubscriptionID: sub.SubscriptionID,
		Plan:           sub.Plan,
	}
	if sub.Status == models.StatusTrialing {
		status.OnTrial = true
		status.TrialEndDate = &sub.TrialEndDate
		status.TrialDaysRemaining = trial.RemainingDays(sub.TrialEndDate, now)
	}
	return status
}

// reconcileFlags приводит денормализованные флаги пользователя в соответствие
// записи подписки. Вызывается при каждой оценке статуса; пишет только при
// расхождении.
func (s *Service) reconcileFlags(ctx context.Context, user *models.User, sub *models.Subscription, now time.Time) {
	flags := models.BillingFlags{
		HadPreviousSubscription: user.HadPreviousSubscription,
		TrialCompleted:          user.TrialCompleted,
		TrialConsumedDays:       user.TrialConsumedDays,
		LastCancellationDate:    user.LastCancellationDate,
	}
	if sub != nil {
		flags.Subscribed = true
		if sub.Status == models.StatusTrialing {
			flags.OnTrial = true
			flags.TrialEndDate = &sub.TrialEndDate
			flags.TrialConsumedDays = trial.ConsumedDays(sub.StartDate, now, s.billing.TrialDays)
		} else {
			flags.TrialCompleted = true
		}
	}

	if flagsMatch(user, flags) {
		return
	}
	if err := s.repo.UpdateUserBillingFlags(ctx, user.UID, flags); err != nil {
		s.log.Warn("user flags reconciliation failed",
			slog.String("user_uid", user.UID), sl.Err(err))
	}
}

func flagsMatch(user *models.User, flags models.BillingFlags) bool {
	if user.Subscribed != flags.Subscribed ||
		user.OnTrial != flags.OnTrial ||
		user.TrialCompleted != flags.TrialCompleted ||
		user.TrialConsumedDays != flags.TrialConsumedDays {
		return false
	}
	if (user.TrialEndDate == nil) != (flags.TrialEndDate == nil) {
		return false
	}
	if user.TrialEndDate != nil && !user.TrialEndDate.Equal(*flags.TrialEndDate) {
		return false
	}
	return true
}
