// Package start реализует HTTP-обработчик оформления новой подписки.
//
// Handler принимает JSON-запрос с данными оформления, валидирует их,
// извлекает идентификатор пользователя из контекста и вызывает бизнес-логику
// оформления. Повторное оформление при живой подписке возвращает 409.
package start

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/nextgig-app/billing-service/internal/http/middlewarectx"
	"github.com/nextgig-app/billing-service/internal/http/response"
	"github.com/nextgig-app/billing-service/internal/lib/sl"
	"github.com/nextgig-app/billing-service/internal/models"
	"github.com/nextgig-app/billing-service/internal/services/subscription"
)

// Handler управляет HTTP-запросами на оформление подписки.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики оформления подписки
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики оформления подписки.
type Service interface {
	Start(ctx context.Context, userUID string, req models.DummyStartRequest) (*models.SubscriptionStatus, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Оформить подписку
// @Description Оформляет подписку для текущего пользователя с учётом права на пробный период.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param request body models.DummyStartRequest true "Данные оформления подписки"
// @Success 200 {object} map[string]any "Подписка оформлена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Подписка уже есть"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при оформлении"
// @Security BearerAuth
// @Router /subscriptions [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.start"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	status, err := h.service.Start(r.Context(), userUID, req)
	if err != nil {
		// Подписка создана, отстали только флаги пользователя; их догонит
		// ближайшая оценка статуса. Повтор запроса дал бы 409.
		if errors.Is(err, subscription.ErrUserFlagsStale) {
			log.Error("subscription started with stale user flags",
				slog.String("user_uid", userUID), sl.Err(err))
			render.JSON(w, r, response.StatusOKWithData(status))
			return
		}
		if errors.Is(err, subscription.ErrAlreadySubscribed) {
			log.Warn("user already has a live subscription", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("subscription already exists"))
			return
		}
		log.Error("failed to start subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not start subscription"))
		return
	}

	log.Info("subscription started",
		slog.String("user_uid", userUID),
		slog.String("status", status.Status))
	render.JSON(w, r, response.StatusOKWithData(status))
}
