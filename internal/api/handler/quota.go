package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/insight_go_server/internal/api/middleware"
	"github.com/qs3c/insight_go_server/internal/pkg/response"
	"github.com/qs3c/insight_go_server/internal/service"
)

type QuotaHandler struct {
	quotaService *service.QuotaService
}

func NewQuotaHandler(quotaService *service.QuotaService) *QuotaHandler {
	return &QuotaHandler{quotaService: quotaService}
}

// GetQuota 当前周期的用量、套餐上限和下次重置时间，读取时会先执行到期重置
// GET /api/v1/user/quota
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.quotaService.GetQuotaInfo(userID)
	switch {
	case err == nil:
		response.Success(c, info)
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}
