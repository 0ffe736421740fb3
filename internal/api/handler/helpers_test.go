package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/api/middleware"
	"github.com/qs3c/insight_go_server/internal/pkg/queue"
	"github.com/qs3c/insight_go_server/internal/pkg/response"
	"github.com/qs3c/insight_go_server/internal/repository"
	"github.com/qs3c/insight_go_server/internal/service"
	"github.com/qs3c/insight_go_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []*queue.JobMessage
}

func (q *fakeQueue) Push(ctx context.Context, msg *queue.JobMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

type handlerFixture struct {
	db       *gorm.DB
	cfg      *config.Config
	queue    *fakeQueue
	analysis *AnalysisHandler
	alerts   *AlertHandler
	billing  *BillingHandler
	quota    *QuotaHandler
}

func setupHandlers(t *testing.T) *handlerFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		Plans: config.PlansConfig{Levels: map[string]config.PlanLevel{
			"free":   {MonthlyAnalyses: 3, MaxEntries: 500},
			"growth": {MonthlyAnalyses: 50, MaxEntries: 5000},
		}},
		Billing: config.BillingConfig{WebhookSecret: "whsec_test", GraceDays: 3},
	}

	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewJobRepository(db)
	q := &fakeQueue{}

	quotaService := service.NewQuotaService(userRepo, cfg)
	notificationService := service.NewNotificationService(repository.NewAlertRepository(db), userRepo, nil)
	analysisService := service.NewAnalysisService(
		jobRepo,
		repository.NewSnapshotRepository(db),
		quotaService,
		service.NewDedupIndex(jobRepo),
		notificationService,
		q,
		nil,
	)
	billingService := service.NewBillingService(repository.NewSubscriptionRepository(db), userRepo, cfg)

	return &handlerFixture{
		db:       db,
		cfg:      cfg,
		queue:    q,
		analysis: NewAnalysisHandler(analysisService),
		alerts:   NewAlertHandler(notificationService),
		billing:  NewBillingHandler(billingService),
		quota:    NewQuotaHandler(quotaService),
	}
}

// mockAuth 模拟认证中间件
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// dataMap 将响应 data 解析为 map
func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

// feedbackText 生成 n 条不同的反馈
func feedbackText(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("feedback entry number %d about exports", i)
	}
	return strings.Join(lines, "\n")
}
