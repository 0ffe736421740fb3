package model

import (
	"time"
)

// Subscription 计费方的订阅记录，以外部订阅 ID 保证 webhook 幂等
type Subscription struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	ExternalID       string     `gorm:"size:100;not null;uniqueIndex" json:"external_id"`
	UserID           int64      `gorm:"not null;index" json:"user_id"`
	Plan             string     `gorm:"size:20;not null" json:"plan"`
	BillingCycle     string     `gorm:"size:20;not null" json:"billing_cycle"`
	Status           string     `gorm:"size:20;default:active;index" json:"status"` // active, past_due, cancelled
	LastPaymentID    string     `gorm:"size:100" json:"last_payment_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
