// Package logerror реализует HTTP-обработчик приёма клиентских отчётов
// об ошибках.
//
// Handler пишет отчёт в серверный журнал. Поток отчётов с одного источника
// ограничивается лимитером: один сломанный клиент способен генерировать
// тысячи одинаковых записей в минуту.
package logerror

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/nextgig-app/billing-service/internal/http/middlewarectx"
	"github.com/nextgig-app/billing-service/internal/http/response"
	"github.com/nextgig-app/billing-service/internal/lib/sl"
	"github.com/nextgig-app/billing-service/internal/ratelimit"
)

// Handler принимает клиентские отчёты об ошибках.
type Handler struct {
	log       *slog.Logger        // Логгер для записи информации и ошибок
	throttler ratelimit.Throttler // Лимитер потока отчётов по источнику
}

// Request тело клиентского отчёта об ошибке.
type Request struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	URL     string `json:"url,omitempty"`
}

// New создает новый Handler с переданными логгером и лимитером.
func New(log *slog.Logger, throttler ratelimit.Throttler) *Handler {
	return &Handler{
		log:       log,
		throttler: throttler,
	}
}

// ServeHTTP godoc
// @Summary Принять клиентский отчёт об ошибке
// @Description Пишет отчёт в серверный журнал. Частые отчёты с одного источника подавляются.
// @Tags Diagnostics
// @Accept json
// @Produce json
// @Success 200 {object} response.Response "Отчёт принят"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 429 {object} response.ErrorResponse "Слишком много отчётов"
// @Security BearerAuth
// @Router /log-error [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.logerror"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	key, _ := r.Context().Value(middlewarectx.UserUID).(string)
	if key == "" {
		key = r.RemoteAddr
	}
	if h.throttler.ShouldThrottle(key) {
		w.WriteHeader(http.StatusTooManyRequests)
		render.JSON(w, r, response.Error("too many error reports"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	log.Error("client error report",
		slog.String("source", key),
		slog.String("message", req.Message),
		slog.String("url", req.URL),
		slog.String("stack", req.Stack))
	render.JSON(w, r, response.OK())
}
