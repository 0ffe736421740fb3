package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/model/dto"
	"github.com/qs3c/insight_go_server/internal/pkg/diff"
	"github.com/qs3c/insight_go_server/internal/pkg/pubsub"
	"github.com/qs3c/insight_go_server/internal/pkg/queue"
	"github.com/qs3c/insight_go_server/internal/repository"
)

const (
	// JobTimeout 从创建到完成的硬性上限
	JobTimeout = 2 * time.Minute
	// AbandonGrace processing 任务超过 JobTimeout 后再等待的时间，之后视为 worker 已丢失
	AbandonGrace = 3 * time.Minute
	// MinEntries 规范化后至少需要的条目数
	MinEntries = 30
	// MaxInputChars 原始输入字符数上限
	MaxInputChars = 250000

	MsgTimedOut = "processing timed out"

	sweepBatchSize = 100
)

var (
	ErrInputTooLarge    = errors.New("输入内容超过 250000 字符")
	ErrJobNotFound      = errors.New("分析任务不存在")
	ErrJobPermission    = errors.New("无权访问此分析任务")
	ErrJobNotActive     = errors.New("分析任务已结束")
	ErrJobExpired       = errors.New("分析任务已超时")
	ErrInvalidOutput    = errors.New("提取结果格式错误")
	ErrQueueUnavailable = errors.New("任务队列不可用，请稍后重试")
)

// NotEnoughDataError 有效条目不足
type NotEnoughDataError struct {
	Count int
}

func (e *NotEnoughDataError) Error() string {
	return fmt.Sprintf("有效反馈条目 %d 条，至少需要 %d 条", e.Count, MinEntries)
}

// JobQueue 后台任务投递
type JobQueue interface {
	Push(ctx context.Context, msg *queue.JobMessage) error
}

// ProgressPublisher 任务进度推送
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
	PublishAlerts(ctx context.Context, userID int64, jobID string, count int) error
}

type AnalysisService struct {
	jobRepo      *repository.JobRepository
	snapshotRepo *repository.SnapshotRepository
	quotaService *QuotaService
	dedup        *DedupIndex
	notifier     *NotificationService
	queue        JobQueue
	publisher    ProgressPublisher
	now          func() time.Time
}

func NewAnalysisService(
	jobRepo *repository.JobRepository,
	snapshotRepo *repository.SnapshotRepository,
	quotaService *QuotaService,
	dedup *DedupIndex,
	notifier *NotificationService,
	jobQueue JobQueue,
	publisher ProgressPublisher,
) *AnalysisService {
	return &AnalysisService{
		jobRepo:      jobRepo,
		snapshotRepo: snapshotRepo,
		quotaService: quotaService,
		dedup:        dedup,
		notifier:     notifier,
		queue:        jobQueue,
		publisher:    publisher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Submit 提交分析：校验、准入、去重后创建排队任务并投递到队列，不等待处理结果
func (s *AnalysisService) Submit(ctx context.Context, userID int64, rawText string, isSample bool) (*dto.SubmitAnalysisResponse, error) {
	if utf8.RuneCountInString(rawText) > MaxInputChars {
		return nil, ErrInputTooLarge
	}

	entries := Normalize(rawText)
	if len(entries) < MinEntries {
		return nil, &NotEnoughDataError{Count: len(entries)}
	}

	// 先重置再比较配额
	user, err := s.quotaService.LoadProfile(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.quotaService.Admit(user, now); err != nil {
		return nil, err
	}
	if err := s.quotaService.NewAccountThrottle(user.CreatedAt, user.AnalysesUsedThisPeriod, now); err != nil {
		return nil, err
	}
	if err := s.quotaService.AdmitEntryCount(user.Plan, len(entries)); err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(entries)
	existing, err := s.dedup.Lookup(userID, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &dto.SubmitAnalysisResponse{JobID: existing.ID, Duplicate: true}, nil
	}

	job := &model.AnalysisJob{
		ID:               uuid.NewString(),
		UserID:           userID,
		Status:           model.JobStatusQueued,
		InputFingerprint: fingerprint,
		TotalEntries:     len(entries),
		Entries:          entries,
		IsSample:         isSample,
		CreatedAt:        now,
	}
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}

	if err := s.queue.Push(ctx, &queue.JobMessage{JobID: job.ID, UserID: userID}); err != nil {
		log.Printf("Job %s: failed to enqueue: %v", job.ID, err)
		s.fail(job, "failed to start processing, please retry")
		return nil, ErrQueueUnavailable
	}

	s.publish(&pubsub.ProgressMessage{
		UserID: userID,
		JobID:  job.ID,
		Status: model.JobStatusQueued,
		Step:   pubsub.StepQueued,
	})

	return &dto.SubmitAnalysisResponse{JobID: job.ID}, nil
}

// BeginProcessing queued → processing，只有一个调用方能成功
func (s *AnalysisService) BeginProcessing(jobID string) (bool, error) {
	return s.jobRepo.Transition(jobID, []string{model.JobStatusQueued}, map[string]interface{}{
		"status":     model.JobStatusProcessing,
		"started_at": s.now(),
	})
}

// Complete 写入提取结果、对比历史快照并转为 processing → completed，全部在一个事务内完成。
// 未认领、已结束或已超时的任务会被丢弃。
func (s *AnalysisService) Complete(ctx context.Context, jobID string, outputs []dto.OpportunityInput) error {
	job, err := s.getJob(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		log.Printf("Job %s: discarding result, job already %s", jobID, job.Status)
		return ErrJobNotActive
	}

	now := s.now()
	if s.pastDeadline(job, now) {
		if expired, err := s.ExpireIfStale(jobID, now); err != nil {
			return err
		} else if !expired {
			s.fail(job, MsgTimedOut)
		}
		log.Printf("Job %s: discarding late result", jobID)
		return ErrJobExpired
	}
	if job.Status != model.JobStatusProcessing {
		log.Printf("Job %s: discarding result, job not claimed yet", jobID)
		return ErrJobNotActive
	}

	opportunities, err := buildOpportunities(job, outputs, now)
	if err != nil {
		s.fail(job, "the extractor returned an invalid result, please retry")
		return err
	}

	current := make([]model.OpportunitySnapshot, len(opportunities))
	snapshots := make([]*model.OpportunitySnapshot, len(opportunities))
	for i, opp := range opportunities {
		current[i] = model.OpportunitySnapshot{
			UserID:           job.UserID,
			AnalysisJobID:    job.ID,
			Title:            opp.Title,
			DemandScore:      opp.DemandScore,
			Priority:         opp.Priority,
			MentionsEstimate: opp.MentionsEstimate,
			CreatedAt:        now,
		}
		snapshots[i] = &current[i]
	}

	previous, err := s.snapshotRepo.ListRecentByUser(job.UserID, job.ID, diff.HistoryLimit)
	if err != nil {
		s.fail(job, "failed to save analysis results, please retry")
		return err
	}
	signals := diff.Compute(current, previous)

	err = s.jobRepo.Transaction(func(tx *gorm.DB) error {
		ok, err := s.jobRepo.WithTx(tx).Transition(job.ID, []string{model.JobStatusProcessing}, map[string]interface{}{
			"status":         model.JobStatusCompleted,
			"completed_at":   now,
			"change_summary": datatypes.JSONSlice[model.ChangeSignal](signals),
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrJobNotActive
		}

		if err := s.jobRepo.WithTx(tx).CreateOpportunities(opportunities); err != nil {
			return err
		}
		if err := s.snapshotRepo.WithTx(tx).CreateBatch(snapshots); err != nil {
			return err
		}

		if job.IsSample {
			return nil
		}
		return s.quotaService.Commit(tx, job.UserID)
	})
	if err != nil {
		if errors.Is(err, ErrJobNotActive) {
			log.Printf("Job %s: discarding result, job finished concurrently", jobID)
			return err
		}
		log.Printf("Job %s: failed to persist results: %v", jobID, err)
		s.fail(job, "failed to save analysis results, please retry")
		return err
	}

	log.Printf("Job %s: completed with %d opportunities, %d signals", jobID, len(opportunities), len(signals))

	// 提醒和通知的失败不影响已完成的分析
	if err := s.notifier.Record(job.UserID, job.ID, signals); err != nil {
		log.Printf("Job %s: failed to record alerts: %v", jobID, err)
	} else if len(signals) > 0 && s.publisher != nil {
		if err := s.publisher.PublishAlerts(ctx, job.UserID, job.ID, len(signals)); err != nil {
			log.Printf("Job %s: failed to publish alerts: %v", jobID, err)
		}
	}
	s.notifier.Notify(job.UserID, signals)

	s.publish(&pubsub.ProgressMessage{
		UserID: job.UserID,
		JobID:  job.ID,
		Status: model.JobStatusCompleted,
		Step:   pubsub.StepDone,
	})

	return nil
}

// CompleteExternal 外部处理方回写结果：先认领仍在排队的任务，再写入结果。
// 已由 worker 认领的任务直接进入 Complete。
func (s *AnalysisService) CompleteExternal(ctx context.Context, jobID string, outputs []dto.OpportunityInput) error {
	if _, err := s.BeginProcessing(jobID); err != nil {
		return err
	}
	return s.Complete(ctx, jobID, outputs)
}

// Fail 转为 failed 并记录原因，不影响用量
func (s *AnalysisService) Fail(jobID, reason string) (bool, error) {
	job, err := s.getJob(jobID)
	if err != nil {
		return false, err
	}
	return s.fail(job, reason), nil
}

func (s *AnalysisService) fail(job *model.AnalysisJob, reason string) bool {
	ok, err := s.jobRepo.Transition(job.ID, repository.ActiveJobStatuses, map[string]interface{}{
		"status":        model.JobStatusFailed,
		"error_message": reason,
		"completed_at":  s.now(),
	})
	if err != nil {
		log.Printf("Job %s: failed to mark failed: %v", job.ID, err)
		return false
	}
	if ok {
		s.publishFailure(job, reason)
	}
	return ok
}

// ExpireIfStale 仍在排队且已超过 JobTimeout 的任务转为 failed。
// 条件写入保证并发调用只有一次生效，其余调用返回 false。
func (s *AnalysisService) ExpireIfStale(jobID string, now time.Time) (bool, error) {
	job, err := s.getJob(jobID)
	if err != nil {
		return false, err
	}
	if job.Status != model.JobStatusQueued || !s.pastDeadline(job, now) {
		return false, nil
	}

	ok, err := s.jobRepo.Transition(job.ID, []string{model.JobStatusQueued}, map[string]interface{}{
		"status":        model.JobStatusFailed,
		"error_message": MsgTimedOut,
		"completed_at":  now,
	})
	if err != nil {
		return false, err
	}
	if ok {
		log.Printf("Job %s: expired after %s in queue", job.ID, now.Sub(job.CreatedAt).Round(time.Second))
		s.publishFailure(job, MsgTimedOut)
	}
	return ok, nil
}

// ExpireStale 批量检查排队超时的任务，返回本次超时的数量
func (s *AnalysisService) ExpireStale(now time.Time) (int, error) {
	jobs, err := s.jobRepo.ListStaleQueued(now.Add(-JobTimeout), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, job := range jobs {
		ok, err := s.ExpireIfStale(job.ID, now)
		if err != nil {
			log.Printf("Job %s: expire check failed: %v", job.ID, err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// ReapAbandoned 处理中但 worker 已失联的任务转为 failed
func (s *AnalysisService) ReapAbandoned(now time.Time) (int, error) {
	jobs, err := s.jobRepo.ListAbandonedProcessing(now.Add(-JobTimeout-AbandonGrace), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, job := range jobs {
		ok, err := s.jobRepo.Transition(job.ID, []string{model.JobStatusProcessing}, map[string]interface{}{
			"status":        model.JobStatusFailed,
			"error_message": MsgTimedOut,
			"completed_at":  now,
		})
		if err != nil {
			log.Printf("Job %s: reap failed: %v", job.ID, err)
			continue
		}
		if ok {
			reaped++
			s.publishFailure(job, MsgTimedOut)
		}
	}
	return reaped, nil
}

// GetStatus 获取任务状态，读取时顺带执行超时检查
func (s *AnalysisService) GetStatus(userID int64, jobID string) (*dto.JobStatusResponse, error) {
	job, err := s.getOwnedJob(userID, jobID)
	if err != nil {
		return nil, err
	}

	expired, err := s.ExpireIfStale(job.ID, s.now())
	if err != nil {
		return nil, err
	}
	if expired {
		if job, err = s.getJob(jobID); err != nil {
			return nil, err
		}
	}

	resp := &dto.JobStatusResponse{
		JobID:         job.ID,
		Status:        job.Status,
		TotalEntries:  job.TotalEntries,
		IsSample:      job.IsSample,
		ChangeSummary: job.ChangeSummary,
		CreatedAt:     job.CreatedAt.Format(time.RFC3339),
	}
	if job.ErrorMessage != nil {
		resp.ErrorMessage = *job.ErrorMessage
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}

	if job.Status == model.JobStatusCompleted {
		opps, err := s.jobRepo.ListOpportunities(job.ID)
		if err != nil {
			return nil, err
		}
		resp.Opportunities = opps
	}

	return resp, nil
}

// Expire 客户端兜底触发的超时检查
func (s *AnalysisService) Expire(userID int64, jobID string) (*dto.ExpireResponse, error) {
	if _, err := s.getOwnedJob(userID, jobID); err != nil {
		return nil, err
	}

	expired, err := s.ExpireIfStale(jobID, s.now())
	if err != nil {
		return nil, err
	}

	job, err := s.getJob(jobID)
	if err != nil {
		return nil, err
	}

	return &dto.ExpireResponse{JobID: job.ID, Status: job.Status, Expired: expired}, nil
}

// GetJob 读取任务
func (s *AnalysisService) GetJob(jobID string) (*model.AnalysisJob, error) {
	return s.getJob(jobID)
}

// Deadline 任务的处理截止时间
func Deadline(job *model.AnalysisJob) time.Time {
	return job.CreatedAt.Add(JobTimeout)
}

func (s *AnalysisService) pastDeadline(job *model.AnalysisJob, now time.Time) bool {
	return now.Sub(job.CreatedAt) > JobTimeout
}

func (s *AnalysisService) getJob(jobID string) (*model.AnalysisJob, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *AnalysisService) getOwnedJob(userID int64, jobID string) (*model.AnalysisJob, error) {
	job, err := s.getJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrJobPermission
	}
	return job, nil
}

func (s *AnalysisService) publish(msg *pubsub.ProgressMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishProgress(context.Background(), msg); err != nil {
		log.Printf("Job %s: failed to publish progress: %v", msg.JobID, err)
	}
}

func (s *AnalysisService) publishFailure(job *model.AnalysisJob, reason string) {
	s.publish(&pubsub.ProgressMessage{
		UserID: job.UserID,
		JobID:  job.ID,
		Status: model.JobStatusFailed,
		Error:  reason,
	})
}

// buildOpportunities 校验提取结果，引用只保留输入中原样存在的条目
func buildOpportunities(job *model.AnalysisJob, outputs []dto.OpportunityInput, now time.Time) ([]*model.Opportunity, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no opportunities", ErrInvalidOutput)
	}

	entries := make(map[string]string, len(job.Entries))
	for _, e := range job.Entries {
		entries[strings.ToLower(e)] = e
	}

	opps := make([]*model.Opportunity, 0, len(outputs))
	for i, out := range outputs {
		title := strings.TrimSpace(out.Title)
		switch {
		case title == "":
			return nil, fmt.Errorf("%w: opportunity %d has no title", ErrInvalidOutput, i+1)
		case out.DemandScore < 0 || out.DemandScore > 10:
			return nil, fmt.Errorf("%w: demand score %.2f out of range", ErrInvalidOutput, out.DemandScore)
		case out.Confidence < 0 || out.Confidence > 100:
			return nil, fmt.Errorf("%w: confidence %d out of range", ErrInvalidOutput, out.Confidence)
		case out.MentionsEstimate < 0:
			return nil, fmt.Errorf("%w: negative mentions estimate", ErrInvalidOutput)
		}
		if _, ok := model.PriorityRank(out.Priority); !ok {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidOutput, out.Priority)
		}

		quotes := make([]string, 0, len(out.Quotes))
		for _, q := range out.Quotes {
			if entry, ok := entries[strings.ToLower(strings.TrimSpace(q))]; ok {
				quotes = append(quotes, entry)
			}
		}

		opps = append(opps, &model.Opportunity{
			AnalysisJobID:    job.ID,
			Rank:             i + 1,
			Title:            title,
			DemandScore:      out.DemandScore,
			Confidence:       out.Confidence,
			Priority:         out.Priority,
			MentionsEstimate: out.MentionsEstimate,
			Problem:          out.Problem,
			SuggestedAction:  out.SuggestedAction,
			Quotes:           quotes,
			CreatedAt:        now,
		})
	}

	return opps, nil
}
