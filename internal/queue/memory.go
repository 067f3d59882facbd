package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/kafka"
	"docuquery-go/pkg/log"
)

// MemoryQueue 是 Queue 的进程内实现，与 Redis 实现保持相同的投递语义。
// 用于测试和无外部依赖的单机部署。
type MemoryQueue struct {
	opts  Options
	ready chan string

	mu       sync.Mutex
	jobs     map[string]*model.UploadJob
	inflight map[string]*time.Timer // jobID -> 可见性超时定时器
	closed   bool
}

// NewMemory 创建一个内存队列。
func NewMemory(opts Options) *MemoryQueue {
	opts.normalize()
	return &MemoryQueue{
		opts:     opts,
		ready:    make(chan string, 4096),
		jobs:     make(map[string]*model.UploadJob),
		inflight: make(map[string]*time.Timer),
	}
}

// Enqueue 将任务置为 queued 并投入就绪通道。
func (q *MemoryQueue) Enqueue(ctx context.Context, job *model.UploadJob) error {
	if job == nil || job.SourceHandle == "" {
		return fmt.Errorf("%w: 任务句柄为空", errs.ErrInvalidInput)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("队列已关闭")
	}
	stored := *job
	stored.Status = model.JobStatusQueued
	q.jobs[job.ID] = &stored
	q.mu.Unlock()

	select {
	case q.ready <- job.ID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue 阻塞等待任务，取出后标记为 processing 并启动可见性超时。
func (q *MemoryQueue) Dequeue(ctx context.Context) (*model.UploadJob, error) {
	for {
		select {
		case jobID := <-q.ready:
			q.mu.Lock()
			job, ok := q.jobs[jobID]
			if !ok || job.Status.Terminal() {
				// 任务已经在别处进入终态，丢弃这次投递
				q.mu.Unlock()
				continue
			}
			job.Status = model.JobStatusProcessing
			q.startVisibilityTimer(jobID)
			snapshot := *job
			q.mu.Unlock()

			if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusProcessing, snapshot.Attempts, snapshot.LastError); err != nil {
				log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
			}
			return &snapshot, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// startVisibilityTimer 必须在持有 q.mu 时调用。
func (q *MemoryQueue) startVisibilityTimer(jobID string) {
	if t, ok := q.inflight[jobID]; ok {
		t.Stop()
	}
	q.inflight[jobID] = time.AfterFunc(q.opts.VisibilityTimeout, func() {
		q.redeliver(jobID)
	})
}

// redeliver 在可见性超时后将任务重新置为可投递。
// 崩溃恢复不等同于处理失败，尝试次数不在这里增加。
func (q *MemoryQueue) redeliver(jobID string) {
	q.mu.Lock()
	delete(q.inflight, jobID)
	job, ok := q.jobs[jobID]
	if !ok || job.Status != model.JobStatusProcessing {
		q.mu.Unlock()
		return
	}
	job.Status = model.JobStatusQueued
	closed := q.closed
	q.mu.Unlock()

	if closed {
		return
	}
	log.Warnf("任务 %s 可见性超时，重新投递", jobID)
	if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusQueued, job.Attempts, job.LastError); err != nil {
		log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
	}
	select {
	case q.ready <- jobID:
	default:
		log.Errorf("就绪通道已满, 任务 %s 重投失败", jobID)
	}
}

// Ack 将任务标记为 completed（终态）。
// 终态不可回退：过期投递的迟到 Ack 直接忽略。
func (q *MemoryQueue) Ack(ctx context.Context, jobID string) error {
	q.mu.Lock()
	if t, ok := q.inflight[jobID]; ok {
		t.Stop()
		delete(q.inflight, jobID)
	}
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("未知任务: %s", jobID)
	}
	if job.Status.Terminal() {
		q.mu.Unlock()
		return nil
	}
	job.Status = model.JobStatusCompleted
	snapshot := *job
	q.mu.Unlock()

	if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusCompleted, snapshot.Attempts, ""); err != nil {
		log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
	}
	q.opts.Notifier.NotifyJobEvent(ctx, kafka.JobEvent{
		JobID:        jobID,
		OriginalName: snapshot.OriginalName,
		Status:       model.JobStatusCompleted,
		Attempts:     snapshot.Attempts,
	})
	return nil
}

// Nack 记录一次失败。可重试且预算未耗尽时按退避延迟重新入队，否则进入死信。
func (q *MemoryQueue) Nack(ctx context.Context, jobID string, cause error) error {
	q.mu.Lock()
	if t, ok := q.inflight[jobID]; ok {
		t.Stop()
		delete(q.inflight, jobID)
	}
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("未知任务: %s", jobID)
	}
	if job.Status.Terminal() {
		q.mu.Unlock()
		return nil
	}
	job.Attempts++
	job.LastError = errText(cause)

	exhausted := job.Attempts >= q.opts.MaxAttempts
	permanent := !errs.IsRetryable(cause)
	if exhausted || permanent {
		job.Status = model.JobStatusDeadLetter
		snapshot := *job
		q.mu.Unlock()

		log.Errorf("任务 %s 进入死信 (attempts=%d, permanent=%v): %v", jobID, snapshot.Attempts, permanent, cause)
		if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusDeadLetter, snapshot.Attempts, snapshot.LastError); err != nil {
			log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
		}
		q.opts.Notifier.NotifyJobEvent(ctx, kafka.JobEvent{
			JobID:        jobID,
			OriginalName: snapshot.OriginalName,
			Status:       model.JobStatusDeadLetter,
			Attempts:     snapshot.Attempts,
			Error:        snapshot.LastError,
		})
		return nil
	}

	job.Status = model.JobStatusQueued
	snapshot := *job
	q.mu.Unlock()

	delay := q.opts.Backoff.Delay(snapshot.Attempts)
	log.Warnf("任务 %s 第 %d 次失败, %s 后重试: %v", jobID, snapshot.Attempts, delay, cause)
	if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusQueued, snapshot.Attempts, snapshot.LastError); err != nil {
		log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
	}
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		select {
		case q.ready <- jobID:
		default:
			log.Errorf("就绪通道已满, 任务 %s 重试入队失败", jobID)
		}
	})
	return nil
}

// Close 停止所有定时器，队列不再接受任务。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for id, t := range q.inflight {
		t.Stop()
		delete(q.inflight, id)
	}
	return nil
}
