package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Queue 基于 Redis list 的可靠队列：Pop 时消息被原子地移到处理中列表，Ack 后删除
type Queue struct {
	client         *redis.Client
	queueName      string
	processingName string
}

type JobMessage struct {
	JobID  string `json:"job_id"`
	UserID int64  `json:"user_id"`

	raw string
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:         client,
		queueName:      queueName,
		processingName: queueName + ":processing",
	}
}

// Push 将任务加入队列
func (q *Queue) Push(ctx context.Context, msg *JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取任务（阻塞），超时返回 nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*JobMessage, error) {
	raw, err := q.client.BRPopLPush(ctx, q.queueName, q.processingName, timeout).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	var msg JobMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// 无法解析的消息直接丢弃，避免反复投递
		q.client.LRem(ctx, q.processingName, 1, raw)
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	msg.raw = raw

	return &msg, nil
}

// Ack 确认任务处理完毕，从处理中列表移除
func (q *Queue) Ack(ctx context.Context, msg *JobMessage) error {
	if msg.raw == "" {
		return nil
	}
	return q.client.LRem(ctx, q.processingName, 1, msg.raw).Err()
}

// Recover 将处理中列表里的消息放回队列（worker 启动时调用），返回恢复条数
func (q *Queue) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for {
		err := q.client.RPopLPush(ctx, q.processingName, q.queueName).Err()
		if err == redis.Nil {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover messages: %w", err)
		}
		recovered++
	}
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// ProcessingLength 获取处理中列表长度
func (q *Queue) ProcessingLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.processingName).Result()
}
