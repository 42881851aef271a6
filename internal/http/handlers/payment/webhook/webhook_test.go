package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/nextgig-app/billing-service/internal/services/subscription"
)

// MockService реализует интерфейс webhook.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) ActivateByProvider(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *MockService) MarkCancelledByProvider(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func TestWebhookHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "активация после триала",
			body: `{"id": "WH-1", "event_type": "BILLING.SUBSCRIPTION.ACTIVATED", "create_time": "2025-04-08T10:00:00Z", "resource": {"id": "I-SUB1", "status": "ACTIVE"}}`,
			setupMock: func(m *MockService) {
				m.On("ActivateByProvider", mock.Anything, "I-SUB1").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"OK"`,
		},
		{
			name: "отмена на стороне провайдера",
			body: `{"id": "WH-2", "event_type": "BILLING.SUBSCRIPTION.CANCELLED", "resource": {"id": "I-SUB1", "status": "CANCELLED"}}`,
			setupMock: func(m *MockService) {
				m.On("MarkCancelledByProvider", mock.Anything, "I-SUB1").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"OK"`,
		},
		{
			name: "приостановка тоже фиксирует отмену",
			body: `{"id": "WH-3", "event_type": "BILLING.SUBSCRIPTION.SUSPENDED", "resource": {"id": "I-SUB1", "status": "SUSPENDED"}}`,
			setupMock: func(m *MockService) {
				m.On("MarkCancelledByProvider", mock.Anything, "I-SUB1").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"OK"`,
		},
		{
			name:           "неизвестное событие подтверждается без обработки",
			body:           `{"id": "WH-4", "event_type": "PAYMENT.SALE.COMPLETED", "resource": {"id": "I-SUB1"}}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"OK"`,
		},
		{
			name: "неизвестная подписка подтверждается",
			body: `{"id": "WH-5", "event_type": "BILLING.SUBSCRIPTION.CANCELLED", "resource": {"id": "I-GHOST"}}`,
			setupMock: func(m *MockService) {
				m.On("MarkCancelledByProvider", mock.Anything, "I-GHOST").
					Return(subscription.ErrNotFound)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"OK"`,
		},
		{
			name:           "некорректный JSON",
			body:           `{not json`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid request body"`,
		},
		{
			name:           "нет идентификатора подписки",
			body:           `{"id": "WH-6", "event_type": "BILLING.SUBSCRIPTION.ACTIVATED", "resource": {}}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"missing subscription id"`,
		},
		{
			name:           "кривое время события отклоняется",
			body:           `{"id": "WH-8", "event_type": "BILLING.SUBSCRIPTION.ACTIVATED", "create_time": "08/04/2025 10:00", "resource": {"id": "I-SUB1"}}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid event time"`,
		},
		{
			name: "ошибка сервиса",
			body: `{"id": "WH-7", "event_type": "BILLING.SUBSCRIPTION.ACTIVATED", "resource": {"id": "I-SUB1"}}`,
			setupMock: func(m *MockService) {
				m.On("ActivateByProvider", mock.Anything, "I-SUB1").
					Return(errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"could not process event"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/payments/paypal/webhook", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
