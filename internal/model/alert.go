package model

import (
	"time"
)

// 提醒类型
const (
	AlertNewOpportunity     = "new_opportunity"
	AlertDemandSurge        = "demand_surge"
	AlertPriorityEscalation = "priority_escalation"
	AlertMentionsSpike      = "mentions_spike"
)

type InsightAlert struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UserID        int64     `gorm:"not null;index:idx_alerts_user_seen,priority:1" json:"user_id"`
	AnalysisJobID string    `gorm:"size:36;not null;index" json:"analysis_job_id"`
	AlertType     string    `gorm:"size:30;not null" json:"alert_type"`
	Title         string    `gorm:"size:200" json:"title"`
	Message       string    `gorm:"type:text;not null" json:"message"`
	Seen          bool      `gorm:"default:false;index:idx_alerts_user_seen,priority:2" json:"seen"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (InsightAlert) TableName() string {
	return "insight_alerts"
}
