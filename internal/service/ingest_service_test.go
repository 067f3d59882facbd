package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery-go/internal/model"
	"docuquery-go/internal/queue"
	"docuquery-go/internal/repository"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/storage"
)

func newIngestFixture(t *testing.T) (IngestService, repository.JobRepository, *queue.MemoryQueue) {
	t.Helper()
	repo := repository.NewMemoryJobRepository()
	q := queue.NewMemory(queue.Options{Repo: repo})
	t.Cleanup(func() { _ = q.Close() })
	return NewIngestService(storage.NewMemory(), repo, q), repo, q
}

func TestSubmitIngestJob_CreatesRecordAndEnqueues(t *testing.T) {
	svc, repo, q := newIngestFixture(t)

	jobID, err := svc.SubmitIngestJob(context.Background(), []byte("%PDF-1.4 fake"), "report.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := repo.FindByID(jobID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", job.OriginalName)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Contains(t, job.SourceHandle, jobID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dequeued, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobID, dequeued.ID)
}

func TestSubmitIngestJob_RejectsInvalidInput(t *testing.T) {
	svc, _, q := newIngestFixture(t)

	cases := []struct {
		name     string
		data     []byte
		fileName string
	}{
		{"空内容", nil, "report.pdf"},
		{"缺少文件名", []byte("data"), ""},
		{"非 PDF 文件", []byte("data"), "report.docx"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitIngestJob(context.Background(), tc.data, tc.fileName)
			assert.ErrorIs(t, err, errs.ErrInvalidInput)
		})
	}

	// 被拒绝的请求不产生任何任务
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitIngestJob_AcceptsUppercaseExtension(t *testing.T) {
	svc, repo, _ := newIngestFixture(t)

	jobID, err := svc.SubmitIngestJob(context.Background(), []byte("%PDF-1.4 fake"), "REPORT.PDF")
	require.NoError(t, err)

	job, err := repo.FindByID(jobID)
	require.NoError(t, err)
	assert.Equal(t, "REPORT.PDF", job.OriginalName)
}

func TestJobStatus(t *testing.T) {
	svc, _, _ := newIngestFixture(t)

	_, err := svc.JobStatus("")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = svc.JobStatus("nonexistent")
	assert.ErrorIs(t, err, repository.ErrJobNotFound)

	jobID, err := svc.SubmitIngestJob(context.Background(), []byte("%PDF-1.4 fake"), "report.pdf")
	require.NoError(t, err)
	job, err := svc.JobStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)
}
