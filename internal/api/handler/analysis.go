package handler

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/insight_go_server/internal/api/middleware"
	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/pkg/response"
	"github.com/qs3c/insight_go_server/internal/service"
)

type AnalysisHandler struct {
	analysisService *service.AnalysisService
}

func NewAnalysisHandler(analysisService *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
	}
}

// Submit 提交分析
// POST /api/v1/analyses
func (h *AnalysisHandler) Submit(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SubmitAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.analysisService.Submit(c.Request.Context(), userID, req.RawText, req.IsSample)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}

	if resp.Duplicate {
		response.SuccessWithMessage(c, "相同内容已分析过", resp)
		return
	}
	response.SuccessWithMessage(c, "已提交", resp)
}

// GetStatus 查询任务状态
// GET /api/v1/analyses/:id
func (h *AnalysisHandler) GetStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.analysisService.GetStatus(userID, c.Param("id"))
	if err != nil {
		writeAnalysisError(c, err)
		return
	}

	response.Success(c, resp)
}

// Expire 客户端轮询超时后请求结束任务
// POST /api/v1/analyses/:id/expire
func (h *AnalysisHandler) Expire(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.analysisService.Expire(userID, c.Param("id"))
	if err != nil {
		writeAnalysisError(c, err)
		return
	}

	response.Success(c, resp)
}

// Callback 外部处理方回写结果
// POST /internal/v1/analyses/:id/callback
func (h *AnalysisHandler) Callback(c *gin.Context) {
	jobID := c.Param("id")

	var req dto.ProcessCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if req.Error != "" {
		failed, err := h.analysisService.Fail(jobID, req.Error)
		if err != nil {
			writeAnalysisError(c, err)
			return
		}
		if !failed {
			response.DuplicateError(c, service.ErrJobNotActive.Error())
			return
		}
		response.SuccessWithMessage(c, "已标记失败", nil)
		return
	}

	if err := h.analysisService.CompleteExternal(c.Request.Context(), jobID, req.Opportunities); err != nil {
		writeAnalysisError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已完成", nil)
}

// writeAnalysisError 将服务层错误映射为响应码
func writeAnalysisError(c *gin.Context, err error) {
	var notEnough *service.NotEnoughDataError
	var entryLimit *service.EntryLimitError

	switch {
	case errors.As(err, &notEnough):
		response.ErrorWithData(c, response.CodeNotEnoughData, err.Error(), dto.EntryCountError{
			Count: notEnough.Count,
		})
	case errors.As(err, &entryLimit):
		response.ErrorWithData(c, response.CodeEntryLimit, err.Error(), dto.EntryCountError{
			Count: entryLimit.Count,
			Limit: entryLimit.Limit,
		})
	case errors.Is(err, service.ErrInputTooLarge):
		response.Error(c, response.CodeInputTooLarge, err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		response.QuotaError(c, err.Error())
	case errors.Is(err, service.ErrSubscriptionRequired):
		response.SubscriptionError(c, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		response.RateLimitError(c, err.Error())
	case errors.Is(err, service.ErrJobNotFound), errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrJobPermission):
		response.PermissionError(c, err.Error())
	case errors.Is(err, service.ErrJobNotActive), errors.Is(err, service.ErrJobExpired):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrInvalidOutput):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrQueueUnavailable):
		response.ServerError(c, err.Error())
	default:
		log.Printf("Analysis request failed: %v", err)
		response.ServerError(c, "")
	}
}
