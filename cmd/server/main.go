package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/api"
	"github.com/qs3c/insight_go_server/internal/api/handler"
	"github.com/qs3c/insight_go_server/internal/api/middleware"
	"github.com/qs3c/insight_go_server/internal/database"
	"github.com/qs3c/insight_go_server/internal/pkg/cron"
	"github.com/qs3c/insight_go_server/internal/pkg/email"
	"github.com/qs3c/insight_go_server/internal/pkg/pubsub"
	"github.com/qs3c/insight_go_server/internal/pkg/queue"
	"github.com/qs3c/insight_go_server/internal/pkg/ws"
	"github.com/qs3c/insight_go_server/internal/repository"
	"github.com/qs3c/insight_go_server/internal/service"
	"github.com/qs3c/insight_go_server/internal/worker"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 Queue 和 Pub/Sub
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewJobRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	// 初始化 Service
	var mailer service.AlertMailer
	if cfg.Email.SMTPHost != "" {
		mailer = email.NewService(&cfg.Email)
	}
	quotaService := service.NewQuotaService(userRepo, cfg)
	notificationService := service.NewNotificationService(alertRepo, userRepo, mailer)
	analysisService := service.NewAnalysisService(
		jobRepo,
		snapshotRepo,
		quotaService,
		service.NewDedupIndex(jobRepo),
		notificationService,
		jobQueue,
		publisher,
	)
	billingService := service.NewBillingService(subscriptionRepo, userRepo, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket Hub，进度和提醒经 Redis pub/sub 从 worker 转发过来
	wsHub := ws.NewHub()
	go func() {
		if err := pubsub.NewSubscriber(rdb).Subscribe(ctx, wsHub.Deliver); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Progress subscriber stopped: %v", err)
		}
	}()
	log.Println("WebSocket hub started")

	// 超时巡检和本地报告清理
	// 配置了 OSS 时，本地报告由 worker 的重传器上传后删除
	var pendingReports cron.PendingReports
	if cfg.OSS.Enabled() {
		pendingReports = jobRepo
	}
	cronService := cron.NewService(analysisService, pendingReports, worker.ReportDir(cfg), cfg.Upload.ExpireHours)
	cronService.Start()

	// 初始化 Handler
	router := api.NewRouter(
		handler.NewAnalysisHandler(analysisService),
		handler.NewAlertHandler(notificationService),
		handler.NewQuotaHandler(quotaService),
		handler.NewBillingHandler(billingService),
		handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins),
		middleware.NewRateLimiter(cfg.Server.PollRate, cfg.Server.PollBurst),
		cfg,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.Setup(),
	}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal")

	cronService.Stop()
	cancel()
	wsHub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server shutdown complete")
}
