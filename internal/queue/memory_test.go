package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery-go/internal/model"
	"docuquery-go/internal/repository"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/kafka"
	"docuquery-go/pkg/retry"
)

// recordingNotifier 记录收到的生命周期事件，供断言用。
type recordingNotifier struct {
	mu     sync.Mutex
	events []kafka.JobEvent
}

func (n *recordingNotifier) NotifyJobEvent(ctx context.Context, event kafka.JobEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) all() []kafka.JobEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]kafka.JobEvent(nil), n.events...)
}

func newTestQueue(t *testing.T, opts Options) (*MemoryQueue, repository.JobRepository) {
	t.Helper()
	if opts.Repo == nil {
		opts.Repo = repository.NewMemoryJobRepository()
	}
	q := NewMemory(opts)
	t.Cleanup(func() { _ = q.Close() })
	return q, opts.Repo
}

func newJob(id string) *model.UploadJob {
	return &model.UploadJob{ID: id, SourceHandle: "uploads/" + id + "-doc.pdf", OriginalName: "doc.pdf"}
}

func TestMemoryQueue_EnqueueDequeueAck(t *testing.T) {
	notifier := &recordingNotifier{}
	q, repo := newTestQueue(t, Options{Notifier: notifier})

	job := newJob("job-1")
	require.NoError(t, repo.Create(job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, model.JobStatusProcessing, got.Status)

	stored, err := repo.FindByID("job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, stored.Status)

	require.NoError(t, q.Ack(context.Background(), "job-1"))
	stored, err = repo.FindByID("job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.JobStatusCompleted, events[0].Status)
}

func TestMemoryQueue_RejectsEmptyHandle(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	err := q.Enqueue(context.Background(), &model.UploadJob{ID: "job-x"})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestMemoryQueue_NackRequeuesAfterBackoff(t *testing.T) {
	q, repo := newTestQueue(t, Options{
		MaxAttempts: 3,
		Backoff:     retry.Policy{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond},
	})

	job := newJob("job-retry")
	require.NoError(t, repo.Create(job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Nack(context.Background(), got.ID, fmt.Errorf("%w: upstream 503", errs.ErrTransientProvider)))

	// 退避后应当重新可取，且尝试次数已累加
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-retry", got.ID)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError, "503")
}

func TestMemoryQueue_ExhaustedRetriesDeadLetter(t *testing.T) {
	notifier := &recordingNotifier{}
	q, repo := newTestQueue(t, Options{
		MaxAttempts: 3,
		Backoff:     retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Notifier:    notifier,
	})

	job := newJob("job-dead")
	require.NoError(t, repo.Create(job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Nack(ctx, got.ID, fmt.Errorf("%w: flaky", errs.ErrTransientProvider)))
	}

	stored, err := repo.FindByID("job-dead")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDeadLetter, stored.Status)
	assert.Equal(t, 3, stored.Attempts)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.JobStatusDeadLetter, events[0].Status)
	assert.Equal(t, 3, events[0].Attempts)
}

func TestMemoryQueue_PermanentErrorDeadLettersImmediately(t *testing.T) {
	q, repo := newTestQueue(t, Options{MaxAttempts: 3})

	job := newJob("job-perm")
	require.NoError(t, repo.Create(job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Nack(context.Background(), got.ID, fmt.Errorf("%w: bad api key", errs.ErrPermanentProvider)))

	stored, err := repo.FindByID("job-perm")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDeadLetter, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestMemoryQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	q, repo := newTestQueue(t, Options{VisibilityTimeout: 30 * time.Millisecond})

	job := newJob("job-crash")
	require.NoError(t, repo.Create(job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Attempts)
	// 不 Ack 也不 Nack，模拟 worker 崩溃

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-crash", got.ID)
	// 超时重投不算一次处理失败
	assert.Equal(t, 0, got.Attempts)

	require.NoError(t, q.Ack(context.Background(), got.ID))
	stored, err := repo.FindByID("job-crash")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
}

func TestMemoryQueue_LateAckDoesNotRevertDeadLetter(t *testing.T) {
	notifier := &recordingNotifier{}
	q, repo := newTestQueue(t, Options{
		MaxAttempts:       3,
		VisibilityTimeout: 20 * time.Millisecond,
		Notifier:          notifier,
	})

	job := newJob("job-race")
	require.NoError(t, repo.Create(job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	// worker A 取走任务后停滞，超时后同一任务被重投给 worker B
	first, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// B 以永久性错误 nack，任务进入死信
	require.NoError(t, q.Nack(context.Background(), second.ID, fmt.Errorf("%w: bad api key", errs.ErrPermanentProvider)))

	// A 的迟到 Ack 不得把终态回退为 completed
	require.NoError(t, q.Ack(context.Background(), first.ID))

	stored, err := repo.FindByID("job-race")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDeadLetter, stored.Status)

	// 生命周期事件只发布一次，且是死信
	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.JobStatusDeadLetter, events[0].Status)
}

func TestMemoryQueue_LateNackDoesNotRevertCompleted(t *testing.T) {
	q, repo := newTestQueue(t, Options{
		MaxAttempts:       3,
		VisibilityTimeout: 20 * time.Millisecond,
	})

	job := newJob("job-race-2")
	require.NoError(t, repo.Create(job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	first, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// B 完成任务，A 的迟到 Nack 不得重新入队或累加尝试次数
	require.NoError(t, q.Ack(context.Background(), second.ID))
	require.NoError(t, q.Nack(context.Background(), first.ID, fmt.Errorf("%w: 502", errs.ErrTransientProvider)))

	stored, err := repo.FindByID("job-race-2")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Equal(t, 0, stored.Attempts)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer waitCancel()
	_, err = q.Dequeue(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_AckAfterDeadLetterIgnoredDelivery(t *testing.T) {
	q, repo := newTestQueue(t, Options{MaxAttempts: 1})

	job := newJob("job-final")
	require.NoError(t, repo.Create(job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Nack(context.Background(), got.ID, fmt.Errorf("%w: boom", errs.ErrTransientProvider)))

	// 终态任务不会被再次投递
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stored, err := repo.FindByID("job-final")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDeadLetter, stored.Status)
}
