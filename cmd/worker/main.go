package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/database"
	"github.com/qs3c/insight_go_server/internal/pkg/email"
	"github.com/qs3c/insight_go_server/internal/pkg/extractor"
	"github.com/qs3c/insight_go_server/internal/pkg/oss"
	"github.com/qs3c/insight_go_server/internal/pkg/pubsub"
	"github.com/qs3c/insight_go_server/internal/pkg/queue"
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

	// 初始化 OSS（可选）
	var ossClient *oss.Client
	if cfg.OSS.Enabled() {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			log.Println("OSS client initialized")
		}
	}

	// 初始化 Queue 和 Pub/Sub
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewJobRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	alertRepo := repository.NewAlertRepository(db)

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

	// 创建任务处理器
	processor := worker.NewProcessor(
		analysisService,
		jobRepo,
		extractor.NewClient(&cfg.Extractor),
		ossClient,
		publisher,
		cfg,
	)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	// 本地报告补传到 OSS
	if ossClient != nil {
		go worker.NewReuploader(jobRepo, ossClient, cfg).Start(ctx)
	}

	log.Printf("Worker started, max workers: %d", cfg.Queue.MaxWorkers)

	if err := worker.NewRunner(jobQueue, processor, cfg.Queue.MaxWorkers).Run(ctx); err != nil {
		log.Printf("Worker stopped with error: %v", err)
	}
	log.Println("Worker shutdown complete")
}
