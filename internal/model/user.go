package model

import (
	"time"
)

// 套餐
const (
	PlanFree   = "free"
	PlanGrowth = "growth"
)

// 计费周期
const (
	BillingMonthly = "monthly"
	BillingAnnual  = "annual"
)

// 订阅状态
const (
	SubscriptionNone      = "none"
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

// User 用户实体，只包含分析核心需要的用量字段（账号、资料等由外部系统维护）
type User struct {
	ID                     int64      `gorm:"primaryKey" json:"id"`
	Email                  *string    `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	Plan                   string     `gorm:"size:20;default:free" json:"plan"`
	BillingCycle           string     `gorm:"size:20;default:monthly" json:"billing_cycle"`
	SubscriptionStatus     string     `gorm:"size:20;default:none" json:"subscription_status"`
	PlanExpiresAt          *time.Time `json:"plan_expires_at,omitempty"`
	AnalysesUsedThisPeriod int        `gorm:"default:0" json:"analyses_used_this_period"`
	LastResetAt            time.Time  `json:"last_reset_at"`
	LastAlertEmailAt       *time.Time `json:"last_alert_email_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
