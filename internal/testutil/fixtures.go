package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
)

// TestUser 创建测试用户，默认 free 套餐、账号创建于一天前
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	now := time.Now().UTC()
	email := fmt.Sprintf("test_%d@example.com", now.UnixNano())
	user := &model.User{
		Email:              &email,
		Plan:               model.PlanFree,
		BillingCycle:       model.BillingMonthly,
		SubscriptionStatus: model.SubscriptionNone,
		LastResetAt:        now.Add(-24 * time.Hour),
		CreatedAt:          now.Add(-24 * time.Hour),
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = &email
	}
}

// WithoutEmail 用户没有邮箱
func WithoutEmail() func(*model.User) {
	return func(u *model.User) {
		u.Email = nil
	}
}

// WithPlan 设置套餐、计费周期和订阅状态
func WithPlan(plan, cycle, status string) func(*model.User) {
	return func(u *model.User) {
		u.Plan = plan
		u.BillingCycle = cycle
		u.SubscriptionStatus = status
	}
}

// WithPlanExpiresAt 设置套餐到期时间
func WithPlanExpiresAt(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.PlanExpiresAt = &at
	}
}

// WithQuotaUsed 设置本周期已使用次数
func WithQuotaUsed(used int) func(*model.User) {
	return func(u *model.User) {
		u.AnalysesUsedThisPeriod = used
	}
}

// WithLastResetAt 设置上次重置时间
func WithLastResetAt(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.LastResetAt = at
	}
}

// WithCreatedAt 设置账号创建时间
func WithCreatedAt(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.CreatedAt = at
	}
}

// WithLastAlertEmailAt 设置上次提醒邮件时间
func WithLastAlertEmailAt(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.LastAlertEmailAt = &at
	}
}

// TestJob 创建测试任务
func TestJob(t *testing.T, db *gorm.DB, userID int64, status string, opts ...func(*model.AnalysisJob)) *model.AnalysisJob {
	t.Helper()

	job := &model.AnalysisJob{
		ID:               uuid.NewString(),
		UserID:           userID,
		Status:           status,
		InputFingerprint: fmt.Sprintf("%064d", time.Now().UnixNano()),
		TotalEntries:     2,
		Entries:          []string{"the export button is broken", "please add dark mode"},
		CreatedAt:        time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithFingerprint 设置输入指纹
func WithFingerprint(fp string) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.InputFingerprint = fp
	}
}

// WithJobCreatedAt 设置任务创建时间
func WithJobCreatedAt(at time.Time) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.CreatedAt = at
	}
}

// WithJobStartedAt 设置开始处理时间
func WithJobStartedAt(at time.Time) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.StartedAt = &at
	}
}

// WithSample 标记为样例分析
func WithSample() func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.IsSample = true
	}
}

// WithEntries 设置规范化后的条目
func WithEntries(entries ...string) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.Entries = entries
		j.TotalEntries = len(entries)
	}
}

// TestSnapshot 创建历史快照
func TestSnapshot(t *testing.T, db *gorm.DB, userID int64, jobID, title string, demand float64, priority string, mentions int, createdAt time.Time) *model.OpportunitySnapshot {
	t.Helper()

	snap := &model.OpportunitySnapshot{
		UserID:           userID,
		AnalysisJobID:    jobID,
		Title:            title,
		DemandScore:      demand,
		Priority:         priority,
		MentionsEstimate: mentions,
		CreatedAt:        createdAt,
	}

	if err := db.Create(snap).Error; err != nil {
		t.Fatalf("Failed to create test snapshot: %v", err)
	}

	return snap
}

// TestAlert 创建提醒
func TestAlert(t *testing.T, db *gorm.DB, userID int64, jobID, alertType string) *model.InsightAlert {
	t.Helper()

	alert := &model.InsightAlert{
		UserID:        userID,
		AnalysisJobID: jobID,
		AlertType:     alertType,
		Title:         "Export to CSV",
		Message:       "New opportunity detected: Export to CSV",
		CreatedAt:     time.Now().UTC(),
	}

	if err := db.Create(alert).Error; err != nil {
		t.Fatalf("Failed to create test alert: %v", err)
	}

	return alert
}
