// Package queue 实现了摄取任务的持久化工作队列与状态跟踪。
//
// 投递语义：Dequeue 为任务附加一个可见性超时，超时内未收到 Ack/Nack
// 的任务会被重新投递给其他 worker。该机制保证 worker 崩溃时任务不丢失，
// 代价是可能重复投递，因此下游的分块与索引写入必须幂等。
package queue

import (
	"context"
	"time"

	"docuquery-go/internal/model"
	"docuquery-go/internal/repository"
	"docuquery-go/pkg/kafka"
	"docuquery-go/pkg/retry"
)

// Queue 是工作队列的能力接口。
// Dequeue 阻塞直到有任务可取或 ctx 取消。
// Nack 增加尝试次数：尝试次数未耗尽且错误可重试时按退避延迟重新入队，
// 否则任务进入死信（终态）。
type Queue interface {
	Enqueue(ctx context.Context, job *model.UploadJob) error
	Dequeue(ctx context.Context) (*model.UploadJob, error)
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, jobID string, cause error) error
	Close() error
}

// Options 是两种队列实现共享的配置。
type Options struct {
	MaxAttempts       int
	VisibilityTimeout time.Duration
	Backoff           retry.Policy
	Repo              repository.JobRepository
	Notifier          kafka.Notifier
}

func (o *Options) normalize() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 60 * time.Second
	}
	if o.Backoff.MaxAttempts == 0 {
		o.Backoff = retry.Default()
	}
	if o.Notifier == nil {
		o.Notifier = kafka.NopNotifier{}
	}
}

// errText 将 nack 的失败原因压缩为可落库的字符串。
func errText(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
