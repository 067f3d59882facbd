package repository

import (
	"errors"
	"sort"
	"sync"

	"docuquery-go/internal/model"
)

// ErrJobNotFound 表示任务记录不存在。
var ErrJobNotFound = errors.New("job record not found")

// memoryJobRepository 是 JobRepository 的进程内实现，用于测试和 memory 队列模式。
type memoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]model.UploadJob
}

// NewMemoryJobRepository 创建一个空的内存任务仓库。
func NewMemoryJobRepository() JobRepository {
	return &memoryJobRepository{jobs: make(map[string]model.UploadJob)}
}

func (r *memoryJobRepository) Create(job *model.UploadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryJobRepository) UpdateStatus(jobID string, status model.JobStatus, attempts int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.Attempts = attempts
	job.LastError = lastError
	r.jobs[jobID] = job
	return nil
}

func (r *memoryJobRepository) FindByID(jobID string) (*model.UploadJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (r *memoryJobRepository) FindRecent(limit int) ([]model.UploadJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]model.UploadJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
