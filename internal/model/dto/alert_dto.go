package dto

// AlertListResponse 提醒列表，Unseen 为全部未读数量
type AlertListResponse struct {
	Total    int64        `json:"total"`
	Unseen   int64        `json:"unseen"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Items    []*AlertItem `json:"items"`
}

// AlertItem 提醒列表项
type AlertItem struct {
	ID            int64  `json:"id"`
	AnalysisJobID string `json:"analysis_job_id"`
	AlertType     string `json:"alert_type"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	Seen          bool   `json:"seen"`
	CreatedAt     string `json:"created_at"`
}
