package model

import (
	"time"

	"gorm.io/datatypes"
)

// 优先级，数值越小越紧急
const (
	PriorityP0 = "P0"
	PriorityP1 = "P1"
	PriorityP2 = "P2"
	PriorityP3 = "P3"
)

var priorityRank = map[string]int{
	PriorityP0: 0,
	PriorityP1: 1,
	PriorityP2: 2,
	PriorityP3: 3,
}

// PriorityRank 返回优先级排序值，未知优先级返回 false
func PriorityRank(priority string) (int, bool) {
	rank, ok := priorityRank[priority]
	return rank, ok
}

// Opportunity 一次分析中提取出的一个主题，完成时批量写入，之后不再修改
type Opportunity struct {
	ID               int64                       `gorm:"primaryKey" json:"id"`
	AnalysisJobID    string                      `gorm:"size:36;not null;index" json:"analysis_job_id"`
	Rank             int                         `gorm:"not null" json:"rank"`
	Title            string                      `gorm:"size:200;not null" json:"title"`
	DemandScore      float64                     `gorm:"not null" json:"demand_score"`
	Confidence       int                         `gorm:"not null" json:"confidence"`
	Priority         string                      `gorm:"size:2;not null" json:"priority"`
	MentionsEstimate int                         `gorm:"not null;default:0" json:"mentions_estimate"`
	Problem          string                      `gorm:"type:text" json:"problem,omitempty"`
	SuggestedAction  string                      `gorm:"type:text" json:"suggested_action,omitempty"`
	Quotes           datatypes.JSONSlice[string] `gorm:"type:json" json:"quotes"`
	CreatedAt        time.Time                   `json:"created_at"`
}

func (Opportunity) TableName() string {
	return "opportunities"
}
