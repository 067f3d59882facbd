// Package kafka 将任务生命周期事件发布到 Kafka，供下游系统（审计、通知）消费。
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"docuquery-go/internal/config"
	"docuquery-go/internal/model"
	"docuquery-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// JobEvent 是发布到 Kafka 的任务状态变更事件。
type JobEvent struct {
	JobID        string          `json:"job_id"`
	OriginalName string          `json:"original_name"`
	Status       model.JobStatus `json:"status"`
	Attempts     int             `json:"attempts"`
	Error        string          `json:"error,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

// Notifier 抽象了事件发布。队列在任务进入终态时调用。
type Notifier interface {
	NotifyJobEvent(ctx context.Context, event JobEvent)
}

// Producer 是基于 kafka-go 的 Notifier 实现。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: writer}
}

// NotifyJobEvent 发送一条任务事件。事件丢失只记日志，不影响任务状态流转。
func (p *Producer) NotifyJobEvent(ctx context.Context, event JobEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化任务事件失败: %v", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.JobID),
		Value: payload,
	}); err != nil {
		log.Errorf("发送任务事件到 Kafka 失败 (job=%s): %v", event.JobID, err)
	}
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// NopNotifier 在未启用 Kafka 时使用，丢弃所有事件。
type NopNotifier struct{}

func (NopNotifier) NotifyJobEvent(context.Context, JobEvent) {}
