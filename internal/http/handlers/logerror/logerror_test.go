package logerror

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nextgig-app/billing-service/internal/http/middlewarectx"
	"github.com/nextgig-app/billing-service/internal/ratelimit"
)

func newRequest(userUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/log-error", strings.NewReader(body))
	if userUID != "" {
		ctx := context.WithValue(req.Context(), middlewarectx.UserUID, userUID)
		req = req.WithContext(ctx)
	}
	return req
}

func TestLogErrorHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := New(logger, ratelimit.NewMemory(100, time.Minute, 1000))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("user-1", `{"message": "TypeError: x is undefined", "url": "/jobs"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OK"`)
}

func TestLogErrorHandler_InvalidJSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := New(logger, ratelimit.NewMemory(100, time.Minute, 1000))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("user-1", `{not json`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogErrorHandler_Throttled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := New(logger, ratelimit.NewMemory(2, time.Minute, 1000))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequest("noisy-user", `{"message": "boom"}`))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("noisy-user", `{"message": "boom"}`))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too many error reports")

	// Другой источник не затронут.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newRequest("other-user", `{"message": "boom"}`))
	assert.Equal(t, http.StatusOK, w.Code)
}
