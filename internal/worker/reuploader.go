package worker

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/pkg/oss"
	"github.com/qs3c/insight_go_server/internal/repository"
)

const (
	reuploadInterval  = 5 * time.Minute
	reuploadBatchSize = 50
	reuploadRetries   = 2
)

// Reuploader 后台把本地保存的报告补传到 OSS
type Reuploader struct {
	jobRepo   *repository.JobRepository
	ossClient *oss.Client
	cfg       *config.Config
}

// NewReuploader 创建重传器
func NewReuploader(
	jobRepo *repository.JobRepository,
	ossClient *oss.Client,
	cfg *config.Config,
) *Reuploader {
	return &Reuploader{
		jobRepo:   jobRepo,
		ossClient: ossClient,
		cfg:       cfg,
	}
}

// Start 启动后台重传循环
func (r *Reuploader) Start(ctx context.Context) {
	// 启动后先执行一次
	r.run()

	ticker := time.NewTicker(reuploadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reuploader stopped")
			return
		case <-ticker.C:
			r.run()
		}
	}
}

func (r *Reuploader) run() {
	jobs, err := r.jobRepo.ListLocalReports(reuploadBatchSize)
	if err != nil {
		log.Printf("Reuploader: failed to query local reports: %v", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	log.Printf("Reuploader: found %d local reports to re-upload", len(jobs))

	for _, job := range jobs {
		localPath, ok := LocalReportPath(r.cfg, job.ReportURL)
		if !ok {
			continue
		}

		data, err := os.ReadFile(localPath)
		if err != nil {
			// 本地文件已被清理
			log.Printf("Reuploader: report for job %s is gone: %v", job.ID, err)
			r.jobRepo.SetReportURL(job.ID, "")
			continue
		}

		ossURL, err := r.ossClient.UploadReportWithRetry(job.UserID, job.ID, data, reuploadRetries)
		if err != nil {
			log.Printf("Reuploader: failed to re-upload report for job %s: %v", job.ID, err)
			continue
		}

		if err := r.jobRepo.SetReportURL(job.ID, ossURL); err != nil {
			log.Printf("Reuploader: failed to update DB for job %s: %v", job.ID, err)
			continue
		}

		os.Remove(localPath)
		log.Printf("Reuploader: successfully re-uploaded report for job %s", job.ID)
	}
}
