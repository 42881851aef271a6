// Package billing собирает приложение биллинга: хранилище, кэш, брокер
// сообщений, платёжного провайдера, бизнес-сервисы и HTTP-сервер.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/nextgig-app/billing-service/internal/cache"
	"github.com/nextgig-app/billing-service/internal/config"
	"github.com/nextgig-app/billing-service/internal/lib/jwt"
	"github.com/nextgig-app/billing-service/internal/lib/rabbitmq"
	"github.com/nextgig-app/billing-service/internal/lib/sl"
	"github.com/nextgig-app/billing-service/internal/migrations"
	"github.com/nextgig-app/billing-service/internal/paymentprovider"
	"github.com/nextgig-app/billing-service/internal/ratelimit"
	fraudservice "github.com/nextgig-app/billing-service/internal/services/fraud"
	resetservice "github.com/nextgig-app/billing-service/internal/services/passwordreset"
	subservice "github.com/nextgig-app/billing-service/internal/services/subscription"
	"github.com/nextgig-app/billing-service/internal/storage"
)

// App инкапсулирует HTTP-сервер и внешние соединения приложения.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *storage.Storage
	amqpConn *amqp.Connection
}

// New создает приложение: открывает соединения, применяет миграции
// и настраивает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	amqpConn, err := rabbitmq.Connect(cfg.RabbitMQ.AmqpURL,
		cfg.RabbitMQ.ConnectRetries, cfg.RabbitMQ.ConnectDelay)
	if err != nil {
		return nil, err
	}
	amqpChannel, err := rabbitmq.SetupChannel(amqpConn)
	if err != nil {
		return nil, err
	}

	providerClient := paymentprovider.New(cfg.PayPal)
	if plan, err := providerClient.GetPlan(ctx); err != nil {
		logger.Warn("payment provider plan check failed", sl.Err(err))
	} else {
		logger.Info("payment provider plan verified",
			slog.String("plan_id", plan.ID),
			slog.String("plan_status", plan.Status))
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)

	fraudService := fraudservice.New(db, logger)
	subscriptionService := subservice.New(db, fraudService, providerClient,
		cacheRedis, logger, cfg.Billing)
	resetService := resetservice.New(db, rabbitmq.NewPublisher(amqpChannel),
		logger, cfg.PasswordResetURL)
	errorThrottler := ratelimit.NewMemory(30, time.Minute, 10000)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, jwtMaker, db, subscriptionService,
		resetService, errorThrottler)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		amqpConn: amqpConn,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if cerr := a.amqpConn.Close(); cerr != nil {
			a.logger.Warn("amqp connection close failed", sl.Err(cerr))
		}
		if cerr := a.db.DB.Close(); cerr != nil {
			a.logger.Warn("database close failed", sl.Err(cerr))
		}
		return err
	}
}
