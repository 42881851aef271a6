package paymentprovider

import "time"

// tokenResponse ответ PayPal на запрос OAuth-токена.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Статусы подписки на стороне PayPal.
const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusSuspended = "SUSPENDED"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusExpired   = "EXPIRED"
)

// SubscriptionDetails содержит данные подписки, возвращаемые провайдером.
type SubscriptionDetails struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	PlanID     string     `json:"plan_id"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	Subscriber struct {
		EmailAddress string `json:"email_address"`
	} `json:"subscriber"`
	BillingInfo struct {
		NextBillingTime *time.Time `json:"next_billing_time,omitempty"`
	} `json:"billing_info"`
}

// PlanDetails содержит данные тарифного плана провайдера.
// Используется только для диагностики при запуске.
type PlanDetails struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// errorResponse тело ошибки PayPal API.
type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}
