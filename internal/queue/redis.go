package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/kafka"
	"docuquery-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

const (
	keyReady    = "docuquery:ingest:ready"    // list: 可立即投递的任务 ID
	keyInflight = "docuquery:ingest:inflight" // zset: 投递中的任务, score 为可见性截止时间
	keyDelayed  = "docuquery:ingest:delayed"  // zset: 退避等待中的任务, score 为重试时间
	keyDead     = "docuquery:ingest:dead"     // list: 死信任务 ID, 仅供巡检
	keyJobFmt   = "docuquery:ingest:job:%s"   // string: 任务负载 JSON

	reapInterval = time.Second
)

// RedisQueue 是 Queue 的 Redis 实现，进程重启后队列内容不丢失。
// 一个后台 reaper 协程负责把可见性超时的任务和退避到期的任务移回就绪队列。
type RedisQueue struct {
	rdb    *redis.Client
	opts   Options
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedis 创建 Redis 队列并启动 reaper。
func NewRedis(rdb *redis.Client, opts Options) *RedisQueue {
	opts.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	q := &RedisQueue{
		rdb:    rdb,
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.reapLoop(ctx)
	return q
}

func jobKey(jobID string) string {
	return fmt.Sprintf(keyJobFmt, jobID)
}

func (q *RedisQueue) saveJob(ctx context.Context, job *model.UploadJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, jobKey(job.ID), payload, 0).Err()
}

func (q *RedisQueue) loadJob(ctx context.Context, jobID string) (*model.UploadJob, error) {
	payload, err := q.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("读取任务负载失败 (job=%s): %w", jobID, err)
	}
	var job model.UploadJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("解析任务负载失败 (job=%s): %w", jobID, err)
	}
	return &job, nil
}

// Enqueue 持久化任务负载并推入就绪队列。
func (q *RedisQueue) Enqueue(ctx context.Context, job *model.UploadJob) error {
	if job == nil || job.SourceHandle == "" {
		return fmt.Errorf("%w: 任务句柄为空", errs.ErrInvalidInput)
	}
	stored := *job
	stored.Status = model.JobStatusQueued
	if err := q.saveJob(ctx, &stored); err != nil {
		return fmt.Errorf("保存任务负载失败: %w", err)
	}
	return q.rdb.RPush(ctx, keyReady, job.ID).Err()
}

// Dequeue 阻塞取出一个任务，并把它移入 inflight 集合。
func (q *RedisQueue) Dequeue(ctx context.Context) (*model.UploadJob, error) {
	for {
		// 短超时轮询，保证 ctx 取消能够及时生效
		res, err := q.rdb.BLPop(ctx, 2*time.Second, keyReady).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("从就绪队列取任务失败: %w", err)
		}
		jobID := res[1]

		deadline := float64(time.Now().Add(q.opts.VisibilityTimeout).UnixMilli())
		if err := q.rdb.ZAdd(ctx, keyInflight, &redis.Z{Score: deadline, Member: jobID}).Err(); err != nil {
			// inflight 登记失败则放回队列，避免任务悬空
			_ = q.rdb.RPush(ctx, keyReady, jobID).Err()
			return nil, fmt.Errorf("登记 inflight 失败: %w", err)
		}

		job, err := q.loadJob(ctx, jobID)
		if err != nil {
			log.Errorf("任务负载缺失, 丢弃投递 (job=%s): %v", jobID, err)
			_ = q.rdb.ZRem(ctx, keyInflight, jobID).Err()
			continue
		}
		if job.Status.Terminal() {
			// 任务已经在别处进入终态，丢弃这次投递
			_ = q.rdb.ZRem(ctx, keyInflight, jobID).Err()
			continue
		}
		job.Status = model.JobStatusProcessing
		if err := q.saveJob(ctx, job); err != nil {
			log.Errorf("保存任务负载失败 (job=%s): %v", jobID, err)
		}
		if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusProcessing, job.Attempts, job.LastError); err != nil {
			log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
		}
		return job, nil
	}
}

// Ack 将任务标记为 completed 并清理队列状态。
// 终态不可回退：过期投递的迟到 Ack 只清理自己的 inflight 登记，
// 不删除死信任务的负载，也不再发布事件。
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		_ = q.rdb.ZRem(ctx, keyInflight, jobID).Err()
		return nil
	}
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, keyInflight, jobID)
	pipe.Del(ctx, jobKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("清理任务队列状态失败 (job=%s): %w", jobID, err)
	}

	if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusCompleted, job.Attempts, ""); err != nil {
		log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
	}
	q.opts.Notifier.NotifyJobEvent(ctx, kafka.JobEvent{
		JobID:        jobID,
		OriginalName: job.OriginalName,
		Status:       model.JobStatusCompleted,
		Attempts:     job.Attempts,
	})
	return nil
}

// Nack 记录一次失败。可重试且预算未耗尽时进入 delayed 集合等待退避，
// 否则转入死信列表（终态，仅供巡检，不再自动重试）。
func (q *RedisQueue) Nack(ctx context.Context, jobID string, cause error) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		_ = q.rdb.ZRem(ctx, keyInflight, jobID).Err()
		return nil
	}
	job.Attempts++
	job.LastError = errText(cause)

	exhausted := job.Attempts >= q.opts.MaxAttempts
	permanent := !errs.IsRetryable(cause)
	if exhausted || permanent {
		job.Status = model.JobStatusDeadLetter
		if err := q.saveJob(ctx, job); err != nil {
			return err
		}
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, keyInflight, jobID)
		pipe.RPush(ctx, keyDead, jobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("转入死信失败 (job=%s): %w", jobID, err)
		}

		log.Errorf("任务 %s 进入死信 (attempts=%d, permanent=%v): %v", jobID, job.Attempts, permanent, cause)
		if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusDeadLetter, job.Attempts, job.LastError); err != nil {
			log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
		}
		q.opts.Notifier.NotifyJobEvent(ctx, kafka.JobEvent{
			JobID:        jobID,
			OriginalName: job.OriginalName,
			Status:       model.JobStatusDeadLetter,
			Attempts:     job.Attempts,
			Error:        job.LastError,
		})
		return nil
	}

	job.Status = model.JobStatusQueued
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	delay := q.opts.Backoff.Delay(job.Attempts)
	retryAt := float64(time.Now().Add(delay).UnixMilli())
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, keyInflight, jobID)
	pipe.ZAdd(ctx, keyDelayed, &redis.Z{Score: retryAt, Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("任务退避入队失败 (job=%s): %w", jobID, err)
	}

	log.Warnf("任务 %s 第 %d 次失败, %s 后重试: %v", jobID, job.Attempts, delay, cause)
	if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusQueued, job.Attempts, job.LastError); err != nil {
		log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
	}
	return nil
}

// reapLoop 周期性地把退避到期和可见性超时的任务移回就绪队列。
func (q *RedisQueue) reapLoop(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.promoteDue(ctx, keyDelayed, false)
			q.promoteDue(ctx, keyInflight, true)
		case <-ctx.Done():
			return
		}
	}
}

// promoteDue 将 zset 中 score 已过期的任务移回就绪队列。
// expired 为 true 时表示可见性超时重投（worker 崩溃恢复），只记日志不加尝试次数。
func (q *RedisQueue) promoteDue(ctx context.Context, key string, expired bool) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	jobIDs, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil || len(jobIDs) == 0 {
		return
	}
	for _, jobID := range jobIDs {
		// ZRem 返回 0 说明别的实例已经抢先处理了这个任务
		removed, err := q.rdb.ZRem(ctx, key, jobID).Result()
		if err != nil || removed == 0 {
			continue
		}
		if expired {
			job, err := q.loadJob(ctx, jobID)
			if err == nil && job.Status.Terminal() {
				continue
			}
			log.Warnf("任务 %s 可见性超时，重新投递", jobID)
			if err == nil {
				job.Status = model.JobStatusQueued
				_ = q.saveJob(ctx, job)
				if err := q.opts.Repo.UpdateStatus(jobID, model.JobStatusQueued, job.Attempts, job.LastError); err != nil {
					log.Errorf("更新任务状态失败 (job=%s): %v", jobID, err)
				}
			}
		}
		if err := q.rdb.RPush(ctx, keyReady, jobID).Err(); err != nil {
			log.Errorf("任务 %s 重投失败: %v", jobID, err)
		}
	}
}

// Close 停止 reaper。队列内容保留在 Redis 中，重启后继续处理。
func (q *RedisQueue) Close() error {
	q.cancel()
	<-q.done
	return nil
}
