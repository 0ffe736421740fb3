package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeQuotaExceeded    = 1004
	CodeDuplicateAction  = 1005
	CodeRateLimited      = 1006
	CodeSubscription     = 1007
	CodeNotEnoughData    = 1010
	CodeEntryLimit       = 1011
	CodeInputTooLarge    = 1012
	CodeServerError      = 5000
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "参数错误",
	CodeAuthFailed:       "认证失败",
	CodePermissionDenied: "权限不足",
	CodeResourceNotFound: "资源不存在",
	CodeQuotaExceeded:    "配额不足",
	CodeDuplicateAction:  "重复操作",
	CodeRateLimited:      "请求过于频繁",
	CodeSubscription:     "需要有效订阅",
	CodeNotEnoughData:    "有效反馈条目不足",
	CodeEntryLimit:       "反馈条目超过套餐上限",
	CodeInputTooLarge:    "输入内容过大",
	CodeServerError:      "服务器内部错误",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, codeMessages[CodeSuccess], data)
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: message, Data: data})
}

// Error 错误响应，message 为空时使用错误码的默认消息
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 带附加数据的错误响应
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) { Error(c, CodeParamError, message) }

// AuthError 认证失败
func AuthError(c *gin.Context, message string) { Error(c, CodeAuthFailed, message) }

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) { Error(c, CodePermissionDenied, message) }

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) { Error(c, CodeResourceNotFound, message) }

// QuotaError 本周期用量已满
func QuotaError(c *gin.Context, message string) { Error(c, CodeQuotaExceeded, message) }

// DuplicateError 重复操作，也用于已结束任务的迟到回调
func DuplicateError(c *gin.Context, message string) { Error(c, CodeDuplicateAction, message) }

// RateLimitError 请求过于频繁
func RateLimitError(c *gin.Context, message string) { Error(c, CodeRateLimited, message) }

// SubscriptionError 订阅失效
func SubscriptionError(c *gin.Context, message string) { Error(c, CodeSubscription, message) }

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) { Error(c, CodeServerError, message) }
