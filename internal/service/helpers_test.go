package service

import (
	"time"

	"github.com/qs3c/insight_go_server/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Plans: config.PlansConfig{
			Levels: map[string]config.PlanLevel{
				"free":   {MonthlyAnalyses: 3, MaxEntries: 500},
				"growth": {MonthlyAnalyses: 50, MaxEntries: 5000},
			},
		},
		Billing: config.BillingConfig{
			WebhookSecret: "whsec_test",
			GraceDays:     3,
		},
		Email: config.EmailConfig{AppURL: "https://app.example.com"},
	}
}

// fixedClock 返回固定时间，可手动推进
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}
