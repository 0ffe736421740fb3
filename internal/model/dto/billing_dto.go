package dto

// 计费事件类型
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// BillingEvent 计费方 webhook 事件
type BillingEvent struct {
	Event   string              `json:"event"`
	Payload BillingEventPayload `json:"payload"`
}

type BillingEventPayload struct {
	SubscriptionID   string `json:"subscription_id"`
	UserID           int64  `json:"user_id"`
	Plan             string `json:"plan"`
	BillingCycle     string `json:"billing_cycle"`
	PaymentID        string `json:"payment_id,omitempty"`
	CurrentPeriodEnd int64  `json:"current_period_end,omitempty"` // unix 秒
}
