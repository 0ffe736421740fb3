package model

import (
	"time"
)

// OpportunitySnapshot 机会评分的历史快照，只追加，仅用于跨次分析对比
type OpportunitySnapshot struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	UserID           int64     `gorm:"not null;index:idx_snapshots_user_created,priority:1" json:"user_id"`
	AnalysisJobID    string    `gorm:"size:36;not null;index" json:"analysis_job_id"`
	Title            string    `gorm:"size:200;not null" json:"title"`
	DemandScore      float64   `gorm:"not null" json:"demand_score"`
	Priority         string    `gorm:"size:2;not null" json:"priority"`
	MentionsEstimate int       `gorm:"not null;default:0" json:"mentions_estimate"`
	CreatedAt        time.Time `gorm:"index:idx_snapshots_user_created,priority:2" json:"created_at"`
}

func (OpportunitySnapshot) TableName() string {
	return "opportunity_snapshots"
}
