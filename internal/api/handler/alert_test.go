package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/pkg/response"
	"github.com/qs3c/insight_go_server/internal/testutil"
)

func alertRouter(f *handlerFixture, userID int64) *gin.Engine {
	router := gin.New()
	router.Use(mockAuth(userID))
	router.GET("/alerts", f.alerts.List)
	router.POST("/alerts/:id/seen", f.alerts.MarkSeen)
	return router
}

func TestAlertHandler_ListAndMarkSeen(t *testing.T) {
	f := setupHandlers(t)
	user := testutil.TestUser(t, f.db)
	job := testutil.TestJob(t, f.db, user.ID, model.JobStatusCompleted)
	first := testutil.TestAlert(t, f.db, user.ID, job.ID, model.AlertNewOpportunity)
	testutil.TestAlert(t, f.db, user.ID, job.ID, model.AlertNewOpportunity)
	router := alertRouter(f, user.ID)

	resp := parseResponse(t, performRequest(router, http.MethodGet, "/alerts?unseen=true", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(2), dataMap(t, resp)["total"])
	assert.Equal(t, float64(2), dataMap(t, resp)["unseen"])

	resp = parseResponse(t, performRequest(router, http.MethodPost, fmt.Sprintf("/alerts/%d/seen", first.ID), nil))
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = parseResponse(t, performRequest(router, http.MethodGet, "/alerts?unseen=true", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["total"])

	resp = parseResponse(t, performRequest(router, http.MethodGet, "/alerts", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(1), data["unseen"])
	assert.Equal(t, float64(1), data["page"])
	assert.Equal(t, float64(20), data["page_size"])
}

func TestAlertHandler_MarkSeen_Errors(t *testing.T) {
	f := setupHandlers(t)
	owner := testutil.TestUser(t, f.db)
	other := testutil.TestUser(t, f.db)
	job := testutil.TestJob(t, f.db, owner.ID, model.JobStatusCompleted)
	alert := testutil.TestAlert(t, f.db, owner.ID, job.ID, model.AlertNewOpportunity)

	tests := []struct {
		name     string
		userID   int64
		path     string
		wantCode int
	}{
		{"invalid id", owner.ID, "/alerts/abc/seen", response.CodeParamError},
		{"missing alert", owner.ID, "/alerts/999999/seen", response.CodeResourceNotFound},
		{"other user's alert", other.ID, fmt.Sprintf("/alerts/%d/seen", alert.ID), response.CodeResourceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := parseResponse(t, performRequest(alertRouter(f, tt.userID), http.MethodPost, tt.path, nil))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}
