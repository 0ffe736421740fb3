package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelAnalysisProgress = "analysis_progress"
)

// 消息类型
const (
	TypeJobProgress = "job_progress"
	TypeNewAlerts   = "new_alerts"
)

// ProgressMessage 任务进度 / 提醒推送消息
type ProgressMessage struct {
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	JobID      string `json:"job_id"`
	Status     string `json:"status,omitempty"`
	Step       string `json:"step,omitempty"`
	Progress   int    `json:"progress"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	AlertCount int    `json:"alert_count,omitempty"`
}

// 进度阶段常量
const (
	StepQueued     = "queued"
	StepExtracting = "extracting"
	StepPersisting = "persisting"
	StepDone       = "done"
)

// 阶段对应的进度百分比
var StepProgress = map[string]int{
	StepQueued:     5,
	StepExtracting: 40,
	StepPersisting: 80,
	StepDone:       100,
}

// 阶段对应的消息
var StepMessages = map[string]string{
	StepQueued:     "等待处理",
	StepExtracting: "正在提取反馈主题",
	StepPersisting: "正在保存结果并对比历史",
	StepDone:       "分析完成",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Type = TypeJobProgress

	if msg.Progress == 0 && msg.Step != "" {
		msg.Progress = StepProgress[msg.Step]
	}
	if msg.Message == "" && msg.Step != "" {
		msg.Message = StepMessages[msg.Step]
	}

	return p.publish(ctx, msg)
}

// PublishAlerts 通知用户产生了新的提醒
func (p *Publisher) PublishAlerts(ctx context.Context, userID int64, jobID string, count int) error {
	return p.publish(ctx, &ProgressMessage{
		Type:       TypeNewAlerts,
		UserID:     userID,
		JobID:      jobID,
		AlertCount: count,
	})
}

func (p *Publisher) publish(ctx context.Context, msg *ProgressMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelAnalysisProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息，阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelAnalysisProgress)
	defer pubsub.Close()

	// 等待订阅确认，保证之后发布的消息不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}
