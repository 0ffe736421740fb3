package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/insight_go_server/internal/api/middleware"
	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/pkg/response"
	"github.com/qs3c/insight_go_server/internal/service"
)

type AlertHandler struct {
	notificationService *service.NotificationService
}

func NewAlertHandler(notificationService *service.NotificationService) *AlertHandler {
	return &AlertHandler{
		notificationService: notificationService,
	}
}

// List 获取变化提醒列表
// GET /api/v1/alerts?unseen=true
// 返回中附带全部未读数量，供角标使用
func (h *AlertHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	unseenOnly := c.Query("unseen") == "true"

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.notificationService.List(userID, unseenOnly, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	unseen, err := h.notificationService.UnseenCount(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.AlertListResponse{
		Total:    total,
		Unseen:   unseen,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	})
}

// MarkSeen 标记提醒为已读
// POST /api/v1/alerts/:id/seen
func (h *AlertHandler) MarkSeen(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	alertID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的提醒ID")
		return
	}

	if err := h.notificationService.MarkSeen(userID, alertID); err != nil {
		if errors.Is(err, service.ErrAlertNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "已读", nil)
}
