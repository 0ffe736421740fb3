package model

import (
	"time"

	"gorm.io/datatypes"
)

// 任务状态
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ChangeSignal 一次分析完成后与历史快照对比得到的变化信号
type ChangeSignal struct {
	Type              string  `json:"type"`
	Title             string  `json:"title"`
	Message           string  `json:"message"`
	DemandChangePct   float64 `json:"demand_change_pct,omitempty"`
	MentionsChangePct float64 `json:"mentions_change_pct,omitempty"`
	PreviousPriority  string  `json:"previous_priority,omitempty"`
	CurrentPriority   string  `json:"current_priority,omitempty"`
}

type AnalysisJob struct {
	ID               string                            `gorm:"primaryKey;size:36" json:"id"`
	UserID           int64                             `gorm:"not null;index:idx_jobs_user_fingerprint,priority:1" json:"user_id"`
	Status           string                            `gorm:"size:20;default:queued;index" json:"status"` // queued, processing, completed, failed
	InputFingerprint string                            `gorm:"size:64;not null;index:idx_jobs_user_fingerprint,priority:2" json:"input_fingerprint"`
	TotalEntries     int                               `gorm:"not null" json:"total_entries"`
	Entries          datatypes.JSONSlice[string]       `gorm:"type:json" json:"-"`
	IsSample         bool                              `gorm:"default:false" json:"is_sample"`
	ErrorMessage     *string                           `gorm:"type:text" json:"error_message,omitempty"`
	ChangeSummary    datatypes.JSONSlice[ChangeSignal] `gorm:"type:json" json:"change_summary,omitempty"`
	ReportURL        string                            `gorm:"size:500" json:"report_url,omitempty"`
	CreatedAt        time.Time                         `gorm:"index" json:"created_at"`
	StartedAt        *time.Time                        `json:"started_at,omitempty"`
	CompletedAt      *time.Time                        `json:"completed_at,omitempty"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

// IsTerminal 是否处于终态
func (j *AnalysisJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
