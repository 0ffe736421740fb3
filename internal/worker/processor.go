package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/pkg/extractor"
	"github.com/qs3c/insight_go_server/internal/pkg/oss"
	"github.com/qs3c/insight_go_server/internal/pkg/pubsub"
	"github.com/qs3c/insight_go_server/internal/pkg/queue"
	"github.com/qs3c/insight_go_server/internal/repository"
	"github.com/qs3c/insight_go_server/internal/service"
)

const (

	msgExtractFailed = "failed to extract opportunities, please retry"
	msgShuttingDown  = "processing was interrupted, please retry"
)

// Extractor 提取服务
type Extractor interface {
	Extract(ctx context.Context, entries []string) ([]dto.OpportunityInput, []byte, error)
}

// Processor 任务处理器
type Processor struct {
	analysisService *service.AnalysisService
	jobRepo         *repository.JobRepository
	extractor       Extractor
	ossClient       *oss.Client
	publisher       service.ProgressPublisher
	cfg             *config.Config
}

// NewProcessor 创建任务处理器
func NewProcessor(
	analysisService *service.AnalysisService,
	jobRepo *repository.JobRepository,
	extractor Extractor,
	ossClient *oss.Client,
	publisher service.ProgressPublisher,
	cfg *config.Config,
) *Processor {
	return &Processor{
		analysisService: analysisService,
		jobRepo:         jobRepo,
		extractor:       extractor,
		ossClient:       ossClient,
		publisher:       publisher,
		cfg:             cfg,
	}
}

// Process 处理一条队列消息。重复投递和已结束的任务直接跳过；
// 提取调用的截止时间就是任务的超时时间。
func (p *Processor) Process(ctx context.Context, msg *queue.JobMessage) error {
	job, err := p.analysisService.GetJob(msg.JobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			log.Printf("Job %s: not found, dropping message", msg.JobID)
			return nil
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	if job.IsTerminal() {
		log.Printf("Job %s: already %s, skipping", job.ID, job.Status)
		return nil
	}

	now := time.Now().UTC()
	if now.After(service.Deadline(job)) {
		if _, err := p.analysisService.ExpireIfStale(job.ID, now); err != nil {
			return err
		}
		log.Printf("Job %s: picked up after deadline, skipping", job.ID)
		return nil
	}

	started, err := p.analysisService.BeginProcessing(job.ID)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	if !started {
		log.Printf("Job %s: already being processed, skipping duplicate delivery", job.ID)
		return nil
	}

	p.publishProgress(job, pubsub.StepExtracting)

	extractCtx, cancel := context.WithDeadline(ctx, service.Deadline(job))
	defer cancel()

	begin := time.Now()
	outputs, raw, err := p.extractor.Extract(extractCtx, job.Entries)
	if err != nil {
		reason := msgExtractFailed
		switch {
		case errors.Is(err, extractor.ErrTimeout), errors.Is(extractCtx.Err(), context.DeadlineExceeded):
			reason = service.MsgTimedOut
		case ctx.Err() != nil:
			reason = msgShuttingDown
		}
		p.analysisService.Fail(job.ID, reason)
		return fmt.Errorf("extract failed: %w", err)
	}
	log.Printf("Job %s: extracted %d opportunities in %s", job.ID, len(outputs), time.Since(begin).Round(time.Millisecond))

	p.publishProgress(job, pubsub.StepPersisting)

	if len(raw) > 0 {
		p.archiveReport(job, raw)
	}

	// Complete 自行发布完成/失败进度
	if err := p.analysisService.Complete(ctx, job.ID, outputs); err != nil {
		return fmt.Errorf("complete failed: %w", err)
	}

	return nil
}

// archiveReport 保存提取器原始响应，失败不影响任务结果
func (p *Processor) archiveReport(job *model.AnalysisJob, raw []byte) {
	var reportURL string
	if p.ossClient != nil {
		url, err := p.ossClient.UploadReport(job.UserID, job.ID, raw)
		if err == nil {
			reportURL = url
		} else {
			log.Printf("Job %s: failed to upload report, saving locally: %v", job.ID, err)
		}
	}

	if reportURL == "" {
		path, err := p.saveLocalReport(job.ID, raw)
		if err != nil {
			log.Printf("Job %s: failed to save report: %v", job.ID, err)
			return
		}
		reportURL = repository.LocalReportPrefix + path
	}

	if err := p.jobRepo.SetReportURL(job.ID, reportURL); err != nil {
		log.Printf("Job %s: failed to record report url: %v", job.ID, err)
	}
}

func (p *Processor) saveLocalReport(jobID string, raw []byte) (string, error) {
	dir := ReportDir(p.cfg)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := jobID + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0644); err != nil {
		return "", err
	}
	return name, nil
}

func (p *Processor) publishProgress(job *model.AnalysisJob, step string) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.PublishProgress(context.Background(), &pubsub.ProgressMessage{
		UserID: job.UserID,
		JobID:  job.ID,
		Status: model.JobStatusProcessing,
		Step:   step,
	})
	if err != nil {
		log.Printf("Job %s: failed to publish progress: %v", job.ID, err)
	}
}

// ReportDir 本地报告目录
func ReportDir(cfg *config.Config) string {
	return filepath.Join(cfg.Upload.TempDir, "reports")
}

// LocalReportPath 将 local:// 报告地址还原为文件路径
func LocalReportPath(cfg *config.Config, reportURL string) (string, bool) {
	if !strings.HasPrefix(reportURL, repository.LocalReportPrefix) {
		return "", false
	}
	name := filepath.Base(strings.TrimPrefix(reportURL, repository.LocalReportPrefix))
	return filepath.Join(ReportDir(cfg), name), true
}
