// Package status реализует HTTP-обработчик получения текущего статуса
// биллинга пользователя.
//
// Handler извлекает идентификатор пользователя из контекста, вызывает
// бизнес-логику оценки статуса и возвращает состояние подписки в JSON-формате.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/nextgig-app/billing-service/internal/http/middlewarectx"
	"github.com/nextgig-app/billing-service/internal/http/response"
	"github.com/nextgig-app/billing-service/internal/lib/sl"
	"github.com/nextgig-app/billing-service/internal/models"
)

// Handler обрабатывает запросы на получение статуса подписки.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики оценки статуса
}

// Service описывает интерфейс бизнес-логики оценки статуса подписки.
type Service interface {
	EvaluateStatus(ctx context.Context, userUID string) (*models.SubscriptionStatus, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Получить статус подписки
// @Description Возвращает текущее состояние биллинга пользователя. Отсутствие подписки — статус none.
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} map[string]any "Текущий статус подписки"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при оценке статуса"
// @Security BearerAuth
// @Router /subscriptions/status [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	status, err := h.service.EvaluateStatus(r.Context(), userUID)
	if err != nil {
		log.Error("failed to evaluate subscription status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not evaluate subscription status"))
		return
	}

	log.Info("subscription status evaluated", slog.String("status", status.Status))
	render.JSON(w, r, response.StatusOKWithData(status))
}
