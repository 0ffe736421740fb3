package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	router := gin.New()
	router.GET("/test", handler)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSuccess(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Success(c, gin.H{"key": "value"})
	})

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse(t, w)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", data["key"])
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(*gin.Context, string)
		code    int
		message string
	}{
		{"param", ParamError, CodeParamError, "参数错误"},
		{"auth", AuthError, CodeAuthFailed, "认证失败"},
		{"permission", PermissionError, CodePermissionDenied, "权限不足"},
		{"not found", NotFoundError, CodeResourceNotFound, "资源不存在"},
		{"quota", QuotaError, CodeQuotaExceeded, "配额不足"},
		{"duplicate", DuplicateError, CodeDuplicateAction, "重复操作"},
		{"rate limit", RateLimitError, CodeRateLimited, "请求过于频繁"},
		{"subscription", SubscriptionError, CodeSubscription, "需要有效订阅"},
		{"server", ServerError, CodeServerError, "服务器内部错误"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" default message", func(t *testing.T) {
			w := serve(func(c *gin.Context) { tt.fn(c, "") })

			assert.Equal(t, http.StatusOK, w.Code)
			resp := parseResponse(t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
			assert.Nil(t, resp.Data)
		})

		t.Run(tt.name+" custom message", func(t *testing.T) {
			w := serve(func(c *gin.Context) { tt.fn(c, "custom") })

			resp := parseResponse(t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, "custom", resp.Message)
		})
	}
}

func TestErrorWithData(t *testing.T) {
	w := serve(func(c *gin.Context) {
		ErrorWithData(c, CodeEntryLimit, "", gin.H{"limit": 500, "count": 612})
	})

	resp := parseResponse(t, w)
	assert.Equal(t, CodeEntryLimit, resp.Code)
	assert.Equal(t, "反馈条目超过套餐上限", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(500), data["limit"])
	assert.Equal(t, float64(612), data["count"])
}

func TestError_UnknownCode(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Error(c, 9999, "")
	})

	resp := parseResponse(t, w)
	assert.Equal(t, 9999, resp.Code)
	assert.Empty(t, resp.Message)
}
