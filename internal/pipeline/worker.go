package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"docuquery-go/internal/model"
	"docuquery-go/internal/queue"
	"docuquery-go/pkg/log"
)

// WorkerPool 维护一组并发 worker，各自独立地从队列取任务处理。
// worker 之间不共享可变状态，队列和向量索引自身保证并发安全。
type WorkerPool struct {
	q          queue.Queue
	processor  *Processor
	size       int
	jobTimeout time.Duration
	wg         sync.WaitGroup
}

// NewWorkerPool 创建 worker 池。size 上限 100，jobTimeout 约束单个任务的总处理时长。
func NewWorkerPool(q queue.Queue, processor *Processor, size int, jobTimeout time.Duration) *WorkerPool {
	if size <= 0 {
		size = 4
	}
	if size > 100 {
		size = 100
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	return &WorkerPool{q: q, processor: processor, size: size, jobTimeout: jobTimeout}
}

// Start 启动所有 worker。ctx 取消后 worker 逐个退出。
func (p *WorkerPool) Start(ctx context.Context) {
	log.Infof("启动摄取 worker 池, 并发数: %d", p.size)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait 阻塞直到所有 worker 退出。
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		job, err := p.q.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Infof("worker %d 退出", id)
				return
			}
			log.Errorf("worker %d 取任务失败: %v", id, err)
			continue
		}
		p.handle(ctx, job)
	}
}

// handle 处理单个任务并提交结果。处理超时按临时性失败 nack。
func (p *WorkerPool) handle(ctx context.Context, job *model.UploadJob) {
	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	if err := p.processor.Process(jobCtx, job); err != nil {
		// 提交结果不使用 jobCtx：即使任务超时也要把失败记录下来
		if nackErr := p.q.Nack(context.Background(), job.ID, err); nackErr != nil {
			log.Errorf("nack 任务失败 (job=%s): %v", job.ID, nackErr)
		}
		return
	}
	if err := p.q.Ack(context.Background(), job.ID); err != nil {
		log.Errorf("ack 任务失败 (job=%s): %v", job.ID, err)
	}
}
