package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/database"
	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/repository"
	"github.com/qs3c/insight_go_server/internal/service"
	"github.com/qs3c/insight_go_server/internal/worker"
)

var (
	dryRun       = flag.Bool("dry-run", true, "Dry run mode, only report what would change")
	reportExpire = flag.Int("report-expire", 168, "Hours to keep local report files")
	sweepJobs    = flag.Bool("sweep-jobs", true, "Fail jobs stuck past their deadline")
	cleanReports = flag.Bool("clean-reports", true, "Remove expired local report files")
)

func main() {
	flag.Parse()

	log.Println("Starting sweep...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *sweepJobs {
		log.Println("Sweeping stuck jobs...")
		sweepStuckJobs(db, cfg, *dryRun)
	}

	if *cleanReports {
		reportDir := worker.ReportDir(cfg)
		log.Printf("Cleaning local reports in %s (older than %d hours)...", reportDir, *reportExpire)
		// 配置了 OSS 时保留等待补传的报告
		var pending *repository.JobRepository
		if cfg.OSS.Enabled() {
			pending = repository.NewJobRepository(db)
		}
		size, count := cleanExpiredReports(reportDir, pending, *reportExpire, *dryRun)
		log.Printf("Reports: %d files, %s", count, formatSize(size))
	}

	log.Println(strings.Repeat("=", 60))
	if *dryRun {
		log.Println("DRY RUN MODE - nothing was changed")
		log.Println("Run with -dry-run=false to apply")
	} else {
		log.Println("Sweep completed")
	}
}

// sweepStuckJobs 让超时的排队任务和丢失 worker 的处理中任务进入终态
func sweepStuckJobs(db *gorm.DB, cfg *config.Config, dryRun bool) {
	now := time.Now().UTC()
	jobRepo := repository.NewJobRepository(db)

	if dryRun {
		stale, err := jobRepo.ListStaleQueued(now.Add(-service.JobTimeout), 1000)
		if err != nil {
			log.Printf("Failed to list stale jobs: %v", err)
			return
		}
		abandoned, err := jobRepo.ListAbandonedProcessing(now.Add(-service.JobTimeout-service.AbandonGrace), 1000)
		if err != nil {
			log.Printf("Failed to list abandoned jobs: %v", err)
			return
		}
		for _, job := range append(stale, abandoned...) {
			logJob(job, now)
		}
		log.Printf("Would fail %d queued and %d processing jobs", len(stale), len(abandoned))
		return
	}

	userRepo := repository.NewUserRepository(db)
	analysisService := service.NewAnalysisService(
		jobRepo,
		repository.NewSnapshotRepository(db),
		service.NewQuotaService(userRepo, cfg),
		service.NewDedupIndex(jobRepo),
		service.NewNotificationService(repository.NewAlertRepository(db), userRepo, nil),
		nil,
		nil,
	)

	expired, err := analysisService.ExpireStale(now)
	if err != nil {
		log.Printf("Failed to expire stale jobs: %v", err)
	}
	reaped, err := analysisService.ReapAbandoned(now)
	if err != nil {
		log.Printf("Failed to reap abandoned jobs: %v", err)
	}
	log.Printf("Failed %d queued and %d processing jobs", expired, reaped)
}

func logJob(job *model.AnalysisJob, now time.Time) {
	log.Printf("  - job %s (user %d, %s, %s old)", job.ID, job.UserID, job.Status, now.Sub(job.CreatedAt).Round(time.Second))
}

// cleanExpiredReports 清理过期的本地报告文件
func cleanExpiredReports(reportDir string, pending *repository.JobRepository, expireHours int, dryRun bool) (int64, int) {
	expireTime := time.Now().Add(-time.Duration(expireHours) * time.Hour)
	var totalSize int64
	var count int

	entries, err := os.ReadDir(reportDir)
	if err != nil {
		log.Printf("Failed to read report dir: %v", err)
		return 0, 0
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(expireTime) {
			continue
		}
		if pending != nil {
			if waiting, err := pending.HasLocalReport(entry.Name()); err != nil || waiting {
				log.Printf("  - %s kept, waiting for upload", entry.Name())
				continue
			}
		}

		totalSize += info.Size()
		log.Printf("  - %s (%.2f KB, %s old)",
			entry.Name(),
			float64(info.Size())/1024,
			time.Since(info.ModTime()).Round(time.Hour))

		if dryRun {
			count++
			continue
		}
		if err := os.Remove(filepath.Join(reportDir, entry.Name())); err != nil {
			log.Printf("    Failed to delete: %v", err)
		} else {
			count++
		}
	}

	return totalSize, count
}

// formatSize 格式化文件大小
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
