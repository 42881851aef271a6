// Package webhook реализует HTTP-обработчик событий платёжного провайдера.
//
// Handler принимает события PayPal о жизненном цикле подписки: активация
// после пробного периода и отмена на стороне провайдера. Неизвестные
// события подтверждаются без обработки, чтобы провайдер их не переповторял.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/nextgig-app/billing-service/internal/http/response"
	"github.com/nextgig-app/billing-service/internal/lib/sl"
	"github.com/nextgig-app/billing-service/internal/lib/trial"
	"github.com/nextgig-app/billing-service/internal/services/subscription"
)

// События подписки PayPal, которые обрабатывает сервис.
const (
	EventSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	EventSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
)

// Service описывает операции жизненного цикла, вызываемые по событиям провайдера.
type Service interface {
	ActivateByProvider(ctx context.Context, subscriptionID string) error
	MarkCancelledByProvider(ctx context.Context, subscriptionID string) error
}

// Handler управляет входящими событиями платёжного провайдера.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// Payload тело события PayPal. Resource.ID — ID подписки у провайдера.
type Payload struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"resource"`
}

// ServeHTTP godoc
// @Summary Событие платёжного провайдера
// @Description Принимает события PayPal о жизненном цикле подписки.
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} response.Response "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело события"
// @Router /payments/paypal/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	defer r.Body.Close() //nolint:errcheck

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if payload.Resource.ID == "" {
		log.Error("webhook payload missing subscription id",
			slog.String("event_type", payload.EventType))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing subscription id"))
		return
	}
	// Временная метка события строго RFC3339; кривое время отклоняется,
	// а не молча пропускается.
	if payload.CreateTime != "" {
		if _, err := trial.ParseTimestamp(payload.CreateTime); err != nil {
			log.Error("webhook payload has malformed event time",
				slog.String("create_time", payload.CreateTime))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid event time"))
			return
		}
	}

	log.Info("webhook event received",
		slog.String("event_type", payload.EventType),
		slog.String("subscription_id", payload.Resource.ID))

	switch payload.EventType {
	case EventSubscriptionActivated:
		err = h.service.ActivateByProvider(r.Context(), payload.Resource.ID)
	case EventSubscriptionCancelled, EventSubscriptionSuspended:
		err = h.service.MarkCancelledByProvider(r.Context(), payload.Resource.ID)
	default:
		log.Info("webhook event ignored", slog.String("event_type", payload.EventType))
		render.JSON(w, r, response.OK())
		return
	}

	// Неизвестная подписка подтверждается, иначе провайдер будет
	// переповторять событие, которое мы обработать не сможем.
	if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process event"))
		return
	}
	if errors.Is(err, subscription.ErrNotFound) {
		log.Warn("webhook event for unknown subscription",
			slog.String("subscription_id", payload.Resource.ID))
	}

	render.JSON(w, r, response.OK())
}
