package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qs3c/insight_go_server/internal/pkg/queue"
)

const defaultPopTimeout = 5 * time.Second

// Runner 从队列取任务并交给 Processor，每个 worker 一个 goroutine
type Runner struct {
	queue      *queue.Queue
	processor  *Processor
	workers    int
	popTimeout time.Duration
}

func NewRunner(q *queue.Queue, processor *Processor, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		queue:      q,
		processor:  processor,
		workers:    workers,
		popTimeout: defaultPopTimeout,
	}
}

// Run 阻塞直到 ctx 取消。启动时先把上次未确认的消息放回队列。
func (r *Runner) Run(ctx context.Context) error {
	recovered, err := r.queue.Recover(ctx)
	if err != nil {
		log.Printf("Worker: failed to recover unacked messages: %v", err)
	} else if recovered > 0 {
		log.Printf("Worker: recovered %d unacked messages", recovered)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		workerID := i
		g.Go(func() error {
			r.loop(ctx, workerID)
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", workerID)
			return
		default:
		}

		msg, err := r.queue.Pop(ctx, r.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Worker %d: failed to pop job: %v", workerID, err)
			continue
		}
		if msg == nil {
			continue
		}

		log.Printf("Worker %d: processing job %s", workerID, msg.JobID)
		if err := r.processor.Process(ctx, msg); err != nil {
			log.Printf("Worker %d: job %s failed: %v", workerID, msg.JobID, err)
		}

		// 任务状态已落库，无论成败都确认消息
		if err := r.queue.Ack(context.Background(), msg); err != nil {
			log.Printf("Worker %d: failed to ack job %s: %v", workerID, msg.JobID, err)
		}
	}
}
