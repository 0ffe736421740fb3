package dto

import "github.com/qs3c/insight_go_server/internal/model"

// SubmitAnalysisRequest 提交分析请求
type SubmitAnalysisRequest struct {
	RawText  string `json:"raw_text" binding:"required"`
	IsSample bool   `json:"is_sample"`
}

// SubmitAnalysisResponse 提交分析响应，Duplicate 为 true 时 JobID 指向已完成的历史分析
type SubmitAnalysisResponse struct {
	JobID     string `json:"job_id"`
	Duplicate bool   `json:"duplicate"`
}

// OpportunityInput 提取器返回的单个机会
type OpportunityInput struct {
	Title            string   `json:"title" binding:"required,max=200"`
	DemandScore      float64  `json:"demand_score" binding:"min=0,max=10"`
	Confidence       int      `json:"confidence" binding:"min=0,max=100"`
	Priority         string   `json:"priority" binding:"required,oneof=P0 P1 P2 P3"`
	MentionsEstimate int      `json:"mentions_estimate" binding:"min=0"`
	Problem          string   `json:"problem,omitempty"`
	SuggestedAction  string   `json:"suggested_action,omitempty"`
	Quotes           []string `json:"quotes,omitempty"`
}

// ProcessCallbackRequest 外部处理方的完成回调，Error 非空表示处理失败。
// 机会列表由服务层校验，格式错误会使任务失败。
type ProcessCallbackRequest struct {
	Opportunities []OpportunityInput `json:"opportunities"`
	Error         string             `json:"error,omitempty"`
}

// JobStatusResponse 任务状态响应
type JobStatusResponse struct {
	JobID         string               `json:"job_id"`
	Status        string               `json:"status"`
	TotalEntries  int                  `json:"total_entries"`
	IsSample      bool                 `json:"is_sample"`
	ErrorMessage  string               `json:"error_message,omitempty"`
	ChangeSummary []model.ChangeSignal `json:"change_summary,omitempty"`
	Opportunities []*model.Opportunity `json:"opportunities,omitempty"`
	CreatedAt     string               `json:"created_at"`
	StartedAt     string               `json:"started_at,omitempty"`
	CompletedAt   string               `json:"completed_at,omitempty"`
}

// ExpireResponse 超时检查结果
type ExpireResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Expired bool   `json:"expired"`
}

// EntryCountError 条目数量相关的错误数据
type EntryCountError struct {
	Count int `json:"count"`
	Limit int `json:"limit,omitempty"`
}
