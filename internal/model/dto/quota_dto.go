package dto

// QuotaInfo 配额信息
type QuotaInfo struct {
	Plan               string `json:"plan"`
	BillingCycle       string `json:"billing_cycle"`
	SubscriptionStatus string `json:"subscription_status"`
	MonthlyLimit       int    `json:"monthly_limit"`
	MonthlyUsed        int    `json:"monthly_used"`
	MonthlyRemain      int    `json:"monthly_remain"`
	MaxEntries         int    `json:"max_entries"`
	LastResetAt        string `json:"last_reset_at"`
	NextResetAt        string `json:"next_reset_at,omitempty"`
}
