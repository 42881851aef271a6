// Package paymentprovider реализует клиент REST API PayPal: получение
// OAuth-токена, отмену подписки и чтение данных подписки и тарифа.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nextgig-app/billing-service/internal/config"
)

const (
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"
)

// ErrProviderCallFailed возвращается, когда провайдер ответил не тем
// статусом, которого требует операция. Отмена считается успешной только
// при подтверждении провайдера.
var ErrProviderCallFailed = errors.New("payment provider call failed")

// Client клиент REST API PayPal. Токен запрашивается на каждую операцию:
// частота обращений к провайдеру здесь низкая, кэширование не окупается.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	planID     string
}

// New создает клиент по конфигурации провайдера.
func New(cfg config.PayPal) *Client {
	baseURL := sandboxBaseURL
	if cfg.IsLive() {
		baseURL = liveBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		clientID:   cfg.ClientID,
		secret:     cfg.Secret,
		planID:     cfg.PlanID,
	}
}

// PlanID возвращает сконфигурированный тарифный план провайдера.
func (c *Client) PlanID() string {
	return c.planID
}

// getAccessToken обменивает client credentials на OAuth-токен.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	const op = "paymentprovider.getAccessToken"

	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %d: %w", op, resp.StatusCode, ErrProviderCallFailed)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%s: empty access token: %w", op, ErrProviderCallFailed)
	}
	return token.AccessToken, nil
}

// CancelSubscription отменяет подписку у провайдера. Успехом считается
// только ответ 204 No Content; любой другой ответ — ошибка, и вызывающая
// сторона не должна менять локальное состояние.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	const op = "paymentprovider.CancelSubscription"

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	payload, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	url := fmt.Sprintf("%s/v1/billing/subscriptions/%s/cancel", c.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%s: %s: %w", op, readProviderError(resp.Body, resp.StatusCode), ErrProviderCallFailed)
	}
	return nil
}

// GetSubscription возвращает данные подписки у провайдера.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	const op = "paymentprovider.GetSubscription"

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	url := fmt.Sprintf("%s/v1/billing/subscriptions/%s", c.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s: %w", op, readProviderError(resp.Body, resp.StatusCode), ErrProviderCallFailed)
	}

	var details SubscriptionDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &details, nil
}

// GetPlan возвращает данные сконфигурированного тарифного плана.
// Вызывается при старте приложения для ранней проверки учётных данных.
func (c *Client) GetPlan(ctx context.Context) (*PlanDetails, error) {
	const op = "paymentprovider.GetPlan"

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	url := fmt.Sprintf("%s/v1/billing/plans/%s", c.baseURL, c.planID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s: %w", op, readProviderError(resp.Body, resp.StatusCode), ErrProviderCallFailed)
	}

	var plan PlanDetails
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &plan, nil
}

// readProviderError формирует короткое описание ошибки из тела ответа.
func readProviderError(body io.Reader, statusCode int) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("status %d", statusCode)
	}
	var errResp errorResponse
	if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Name == "" {
		return fmt.Sprintf("status %d: %s", statusCode, string(raw))
	}
	return fmt.Sprintf("status %d: %s: %s", statusCode, errResp.Name, errResp.Message)
}
