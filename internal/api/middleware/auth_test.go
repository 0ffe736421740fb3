package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/insight_go_server/internal/pkg/jwt"
	"github.com/qs3c/insight_go_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func TestAuth_Success(t *testing.T) {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", func(c *gin.Context) {
		userID, ok := GetUserID(c)
		assert.True(t, ok)
		response.Success(c, gin.H{"user_id": userID})
	})

	token, err := jwt.GenerateToken(123, testJWTSecret, 24)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(123), resp.Data.(map[string]interface{})["user_id"])
}

func TestAuth_Rejects(t *testing.T) {
	otherSecret, err := jwt.GenerateToken(123, "different-secret", 24)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken(123, testJWTSecret, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "some-token-without-bearer"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + otherSecret},
		{"expired", "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			router := gin.New()
			router.Use(Auth(testJWTSecret))
			router.GET("/test", func(c *gin.Context) { reached = true })

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
			assert.False(t, reached)
		})
	}
}

func TestWorkerAuth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
		wantPass   bool
	}{
		{"matching secret", "worker-secret", "worker-secret", true},
		{"wrong secret", "worker-secret", "guess", false},
		{"missing header", "worker-secret", "", false},
		{"unconfigured secret", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			router := gin.New()
			router.Use(WorkerAuth(tt.configured))
			router.POST("/callback", func(c *gin.Context) {
				reached = true
				response.Success(c, nil)
			})

			req := httptest.NewRequest("POST", "/callback", nil)
			if tt.provided != "" {
				req.Header.Set(WorkerSecretHeader, tt.provided)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantPass, reached)
			if !tt.wantPass {
				assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
			}
		})
	}
}

func TestGetUserID(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		wantID int64
		wantOK bool
	}{
		{"not set", nil, 0, false},
		{"wrong type", "not-an-int64", 0, false},
		{"int64", int64(789), 789, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tt.value != nil {
				c.Set(UserIDKey, tt.value)
			}
			id, ok := GetUserID(c)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
