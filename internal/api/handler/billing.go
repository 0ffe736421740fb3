package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/pkg/response"
	"github.com/qs3c/insight_go_server/internal/service"
)

const (
	// BillingSignatureHeader 计费回调签名头
	BillingSignatureHeader = "X-Billing-Signature"

	maxWebhookBody = 1 << 20
)

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

// Webhook 计费平台回调，签名基于原始请求体计算
// POST /api/v1/billing/webhook
func (h *BillingHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.ParamError(c, "读取请求体失败")
		return
	}

	if err := h.billingService.VerifySignature(body, c.GetHeader(BillingSignatureHeader)); err != nil {
		log.Printf("Billing webhook: rejected request from %s: %v", c.ClientIP(), err)
		response.AuthError(c, err.Error())
		return
	}

	var event dto.BillingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.ParamError(c, "无效的事件格式")
		return
	}

	err = h.billingService.HandleEvent(&event)
	switch {
	case err == nil:
		response.Success(c, nil)
	case errors.Is(err, service.ErrUnknownEvent):
		// 未订阅的事件类型直接确认，避免平台反复重试
		log.Printf("Billing webhook: ignoring event %q", event.Event)
		response.SuccessWithMessage(c, "ignored", nil)
	case errors.Is(err, service.ErrInvalidBillingEvent):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrSubscriptionNotFound), errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}
