package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/api/handler"
	"github.com/qs3c/insight_go_server/internal/api/middleware"
)

type Router struct {
	analysisHandler  *handler.AnalysisHandler
	alertHandler     *handler.AlertHandler
	quotaHandler     *handler.QuotaHandler
	billingHandler   *handler.BillingHandler
	websocketHandler *handler.WebSocketHandler
	pollLimiter      *middleware.RateLimiter
	cfg              *config.Config
}

func NewRouter(
	analysisHandler *handler.AnalysisHandler,
	alertHandler *handler.AlertHandler,
	quotaHandler *handler.QuotaHandler,
	billingHandler *handler.BillingHandler,
	websocketHandler *handler.WebSocketHandler,
	pollLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *Router {
	return &Router{
		analysisHandler:  analysisHandler,
		alertHandler:     alertHandler,
		quotaHandler:     quotaHandler,
		billingHandler:   billingHandler,
		websocketHandler: websocketHandler,
		pollLimiter:      pollLimiter,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 计费回调，签名校验在 handler 内完成
		api.POST("/billing/webhook", r.billingHandler.Webhook)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/user/quota", r.quotaHandler.GetQuota)

			// 分析
			analyses := authenticated.Group("/analyses")
			{
				analyses.POST("", r.analysisHandler.Submit)
				analyses.GET("/:id", middleware.RateLimit(r.pollLimiter), r.analysisHandler.GetStatus)
				analyses.POST("/:id/expire", r.analysisHandler.Expire)
			}

			// 变化提醒
			alerts := authenticated.Group("/alerts")
			{
				alerts.GET("", r.alertHandler.List)
				alerts.POST("/:id/seen", r.alertHandler.MarkSeen)
			}
		}
	}

	// 内部接口，供外部处理方回写结果
	internal := engine.Group("/internal/v1")
	internal.Use(middleware.WorkerAuth(r.cfg.Worker.CallbackSecret))
	{
		internal.POST("/analyses/:id/callback", r.analysisHandler.Callback)
	}

	return engine
}
