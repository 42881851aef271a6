// Package storage реализует хранилище данных на основе PostgreSQL
// для подписок, пользователей и токенов восстановления пароля.
//
// Хранилище не предоставляет межзаписных транзакций: каждая операция
// атомарна на уровне одной записи, порядок связанных записей обеспечивает
// сервис жизненного цикла подписки.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Регистрация драйвера pgx для использования с database/sql.
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextgig-app/billing-service/internal/models"
)

// ErrNotFound возвращается, когда запрошенная запись отсутствует.
// Отсутствие подписки — представимое состояние, а не сбой; вызывающая
// сторона различает его через errors.Is.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate возвращается при нарушении ограничения уникальности,
// в частности при попытке создать вторую живую подписку для пользователя.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func (s *Storage) CheckDatabaseReady(ctx context.Context) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'subscriptions'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table subscriptions missing or query error: %w", err)
	}
	return nil
}

// ===== SUBSCRIPTION METHODS =====

const subscriptionColumns = `id, subscription_id, user_uid, status, plan, price, currency,
	payment_method, start_date, trial_end_date, fingerprint, cancelled_at,
	trial_consumed_days, created_at`

func scanSubscription(row interface{ Scan(...any) error }) (*models.Subscription, error) {
	var sub models.Subscription
	var cancelledAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.SubscriptionID, &sub.UserUID, &sub.Status,
		&sub.Plan, &sub.Price, &sub.Currency, &sub.PaymentMethod, &sub.StartDate,
		&sub.TrialEndDate, &sub.Fingerprint, &cancelledAt,
		&sub.TrialConsumedDays, &sub.CreatedAt); err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		sub.CancelledAt = &cancelledAt.Time
	}
	return &sub, nil
}

// CreateSubscription вставляет новую запись подписки и возвращает её ID.
// Отметка created_at назначается на стороне сервера. Частичный уникальный
// индекс не позволяет завести вторую живую подписку на пользователя:
// гонка двух одновременных оформлений возвращает ErrDuplicate.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (subscription_id, user_uid, status, plan, price,
			      currency, payment_method, start_date, trial_end_date, fingerprint, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		sub.SubscriptionID, sub.UserUID, sub.Status, sub.Plan, sub.Price,
		sub.Currency, sub.PaymentMethod, sub.StartDate, sub.TrialEndDate,
		sub.Fingerprint).Scan(&newID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%s: %w", op, ErrDuplicate)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetLiveSubscriptionByUserUID возвращает действующую (trialing или active)
// подписку пользователя, либо ErrNotFound.
func (s *Storage) GetLiveSubscriptionByUserUID(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetLiveSubscriptionByUserUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1
			    AND status IN ('trialing', 'active')
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscriptionByProviderID возвращает подписку по ID, назначенному
// платёжным провайдером, либо ErrNotFound.
func (s *Storage) GetSubscriptionByProviderID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByProviderID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE subscription_id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, subscriptionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpdateSubscriptionStatus выполняет частичное обновление статуса подписки.
// Поля, переданные как nil, не затрагиваются. Записи в статусе cancelled
// неизменяемы: обновление такой записи не находит строк и возвращает ErrNotFound.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, subscriptionID, status string,
	cancelledAt *time.Time, trialConsumedDays *int) error {
	const op = "storage.UpdateSubscriptionStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = $2,
			      cancelled_at = COALESCE($3, cancelled_at),
			      trial_consumed_days = COALESCE($4, trial_consumed_days)
			  WHERE subscription_id = $1
			    AND status <> 'cancelled'`
	res, err := s.DB.ExecContext(ctx, query, subscriptionID, status, cancelledAt, trialConsumedDays)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ListLiveSubscriptionsByFingerprint возвращает действующие подписки,
// оформленные с указанным отпечатком устройства. Используется проверкой
// повторного использования пробного периода; записи не изменяются.
func (s *Storage) ListLiveSubscriptionsByFingerprint(ctx context.Context, fingerprint string) ([]*models.Subscription, error) {
	const op = "storage.ListLiveSubscriptionsByFingerprint"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE fingerprint = $1
			    AND status IN ('trialing', 'active')
			  ORDER BY created_at`
	rows, err := s.DB.QueryContext(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListCancelledSubscriptions возвращает отменённые подписки пользователя,
// начиная с последней отмены. Используется при расчёте права на триал.
func (s *Storage) ListCancelledSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	const op = "storage.ListCancelledSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1
			    AND status = 'cancelled'
			  ORDER BY cancelled_at DESC NULLS LAST`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ===== USER METHODS =====

// GetUserByUID возвращает пользователя по uid, либо ErrNotFound.
func (s *Storage) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUserByUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, name, password_hash, subscribed, on_trial, trial_end_date,
			      had_previous_subscription, trial_completed, trial_consumed_days,
			      last_cancellation_date, created_at
			  FROM users WHERE uid = $1`
	return s.scanUser(s.DB.QueryRowContext(ctx, query, userUID), op)
}

// GetUserByEmail возвращает пользователя по email (без учёта регистра), либо ErrNotFound.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, name, password_hash, subscribed, on_trial, trial_end_date,
			      had_previous_subscription, trial_completed, trial_consumed_days,
			      last_cancellation_date, created_at
			  FROM users WHERE email = LOWER($1)`
	return s.scanUser(s.DB.QueryRowContext(ctx, query, email), op)
}

func (s *Storage) scanUser(row *sql.Row, op string) (*models.User, error) {
	var u models.User
	var trialEndDate, lastCancellation sql.NullTime
	if err := row.Scan(&u.UID, &u.Email, &u.Name, &u.PasswordHash, &u.Subscribed,
		&u.OnTrial, &trialEndDate, &u.HadPreviousSubscription, &u.TrialCompleted,
		&u.TrialConsumedDays, &lastCancellation, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if trialEndDate.Valid {
		u.TrialEndDate = &trialEndDate.Time
	}
	if lastCancellation.Valid {
		u.LastCancellationDate = &lastCancellation.Time
	}
	return &u, nil
}

// UpdateUserBillingFlags перезаписывает денормализованные флаги биллинга
// на записи пользователя. Остальные поля записи не затрагиваются.
func (s *Storage) UpdateUserBillingFlags(ctx context.Context, userUID string, flags models.BillingFlags) error {
	const op = "storage.UpdateUserBillingFlags"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET subscribed = $2,
			      on_trial = $3,
			      trial_end_date = $4,
			      had_previous_subscription = $5,
			      trial_completed = $6,
			      trial_consumed_days = $7,
			      last_cancellation_date = $8
			  WHERE uid = $1`
	res, err := s.DB.ExecContext(ctx, query, userUID, flags.Subscribed, flags.OnTrial,
		flags.TrialEndDate, flags.HadPreviousSubscription, flags.TrialCompleted,
		flags.TrialConsumedDays, flags.LastCancellationDate)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// UpdateUserPasswordHash сохраняет новый хэш пароля пользователя.
func (s *Storage) UpdateUserPasswordHash(ctx context.Context, email, passwordHash string) error {
	const op = "storage.UpdateUserPasswordHash"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET password_hash = $2 WHERE email = LOWER($1)`
	res, err := s.DB.ExecContext(ctx, query, email, passwordHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ===== VERIFICATION TOKEN METHODS =====

// CreateVerificationToken сохраняет одноразовый токен восстановления пароля.
func (s *Storage) CreateVerificationToken(ctx context.Context, identifier, tokenValue string, expires time.Time) (int, error) {
	const op = "storage.CreateVerificationToken"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO verification_tokens (identifier, token, expires, created_at)
			  VALUES (LOWER($1), $2, $3, NOW())
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query, identifier, tokenValue, expires).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// FindVerificationToken возвращает токен по его значению, либо ErrNotFound.
func (s *Storage) FindVerificationToken(ctx context.Context, tokenValue string) (*models.VerificationToken, error) {
	const op = "storage.FindVerificationToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, identifier, token, expires, created_at
			  FROM verification_tokens WHERE token = $1`
	var vt models.VerificationToken
	err := s.DB.QueryRowContext(ctx, query, tokenValue).Scan(&vt.ID, &vt.Identifier,
		&vt.Token, &vt.Expires, &vt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &vt, nil
}

// DeleteVerificationToken удаляет токен: и успешное использование,
// и обнаруженное истечение заканчиваются удалением записи.
func (s *Storage) DeleteVerificationToken(ctx context.Context, tokenValue string) error {
	const op = "storage.DeleteVerificationToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM verification_tokens WHERE token = $1`
	if _, err := s.DB.ExecContext(ctx, query, tokenValue); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
