// Package billing предоставляет маршруты приложения биллинга.
package billing

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/nextgig-app/billing-service/internal/http/handlers/health"
	"github.com/nextgig-app/billing-service/internal/http/handlers/logerror"
	passwordconfirm "github.com/nextgig-app/billing-service/internal/http/handlers/password/confirm"
	passwordrequest "github.com/nextgig-app/billing-service/internal/http/handlers/password/request"
	"github.com/nextgig-app/billing-service/internal/http/handlers/payment/webhook"
	"github.com/nextgig-app/billing-service/internal/http/handlers/subscription/cancel"
	"github.com/nextgig-app/billing-service/internal/http/handlers/subscription/start"
	"github.com/nextgig-app/billing-service/internal/http/handlers/subscription/status"
	"github.com/nextgig-app/billing-service/internal/http/middlewarectx"
	"github.com/nextgig-app/billing-service/internal/lib/jwt"
	"github.com/nextgig-app/billing-service/internal/ratelimit"
	resetservice "github.com/nextgig-app/billing-service/internal/services/passwordreset"
	subservice "github.com/nextgig-app/billing-service/internal/services/subscription"
	"github.com/nextgig-app/billing-service/internal/storage"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, jwtMaker jwt.Maker,
	db *storage.Storage, subscriptionService *subservice.Service,
	resetService *resetservice.Service, errorThrottler ratelimit.Throttler) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	apiLimiter := rate.NewLimiter(50, 100)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/password/reset", passwordrequest.New(logger, resetService).ServeHTTP)
		r.Post("/password/reset/confirm", passwordconfirm.New(logger, resetService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(apiLimiter, logger))
			r.Get("/subscriptions/status", status.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscriptions", start.New(logger, subscriptionService).ServeHTTP)
			r.Delete("/subscriptions/{id}", cancel.New(logger, subscriptionService).ServeHTTP)
			r.Post("/log-error", logerror.New(logger, errorThrottler).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации)
		r.Post("/payments/paypal/webhook", webhook.New(logger, subscriptionService).ServeHTTP)
	})

	r.Get("/health", health.New(logger, db).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
