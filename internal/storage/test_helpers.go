package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nextgig-app/billing-service/internal/migrations"
	"github.com/nextgig-app/billing-service/internal/models"
)

// setupTestDatabase поднимает контейнер PostgreSQL, применяет миграции
// и возвращает готовое хранилище с функцией очистки.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort(nat.Port("5432/tcp")),
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2),
			).WithDeadline(3*time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := New(dsn)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(store.DB, migrationsPath))

	cleanup := func() {
		_ = store.DB.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return store, cleanup
}

// TestDataFactory содержит методы для создания тестовых данных.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных.
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя и возвращает его uid.
func (f *TestDataFactory) CreateUser(t *testing.T, email string) string {
	t.Helper()
	uid := uuid.New().String()
	_, err := f.storage.DB.Exec(`INSERT INTO users (uid, email, name, password_hash)
		VALUES ($1, LOWER($2), 'Test User', 'hashedpassword')`,
		uid, email)
	require.NoError(t, err)
	return uid
}

// CreateSubscription создает тестовую подписку с заданным статусом.
func (f *TestDataFactory) CreateSubscription(t *testing.T, userUID, status, fingerprint string,
	startDate, trialEndDate time.Time) string {
	t.Helper()
	subscriptionID := "I-" + uuid.New().String()[:8]
	_, err := f.storage.DB.Exec(`INSERT INTO subscriptions
		(subscription_id, user_uid, status, plan, price, currency, payment_method,
		 start_date, trial_end_date, fingerprint)
		VALUES ($1, $2, $3, 'standard', 2.99, 'GBP', 'paypal', $4, $5, $6)`,
		subscriptionID, userUID, status, startDate, trialEndDate, fingerprint)
	require.NoError(t, err)
	return subscriptionID
}

// GetTestSubscription возвращает стандартные тестовые данные подписки.
func GetTestSubscription(userUID string) models.Subscription {
	startDate := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	return models.Subscription{
		SubscriptionID: "I-TESTSUB1",
		UserUID:        userUID,
		Status:         models.StatusTrialing,
		Plan:           "standard",
		Price:          2.99,
		Currency:       "GBP",
		PaymentMethod:  "paypal",
		StartDate:      startDate,
		TrialEndDate:   startDate.AddDate(0, 0, 7),
		Fingerprint:    "fp-test",
	}
}
