package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docuquery-go/internal/model"
	"docuquery-go/internal/queue"
	"docuquery-go/internal/repository"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/storage"

	"github.com/google/uuid"
)

// IngestService 定义了文档摄取的入口操作。
type IngestService interface {
	// SubmitIngestJob 保存原始字节、创建任务记录并入队，返回任务 ID。
	SubmitIngestJob(ctx context.Context, data []byte, originalName string) (string, error)
	// JobStatus 返回任务的当前状态记录。死信任务同样可查询。
	JobStatus(jobID string) (*model.UploadJob, error)
}

type ingestService struct {
	store   storage.ObjectStore
	jobRepo repository.JobRepository
	q       queue.Queue
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(store storage.ObjectStore, jobRepo repository.JobRepository, q queue.Queue) IngestService {
	return &ingestService{store: store, jobRepo: jobRepo, q: q}
}

// SubmitIngestJob 接收上传的 PDF 并触发异步摄取。
// 非法输入（空内容、非 PDF）立即拒绝，不入队、不产生任务记录。
func (s *ingestService) SubmitIngestJob(ctx context.Context, data []byte, originalName string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: 上传内容为空", errs.ErrInvalidInput)
	}
	if originalName == "" {
		return "", fmt.Errorf("%w: 缺少文件名", errs.ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(originalName), ".pdf") {
		return "", fmt.Errorf("%w: 仅支持 PDF 文档", errs.ErrInvalidInput)
	}

	jobID := uuid.NewString()
	objectName := fmt.Sprintf("uploads/%s-%s", jobID, originalName)
	handle, err := s.store.Store(ctx, data, objectName)
	if err != nil {
		return "", fmt.Errorf("保存上传文件失败: %w", err)
	}

	job := &model.UploadJob{
		ID:           jobID,
		SourceHandle: handle,
		OriginalName: originalName,
		Status:       model.JobStatusQueued,
	}
	if err := s.jobRepo.Create(job); err != nil {
		return "", fmt.Errorf("创建任务记录失败: %w", err)
	}
	if err := s.q.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("任务入队失败: %w", err)
	}

	log.Infof("[IngestService] 任务已入队, JobID: %s, FileName: %s, 大小: %d 字节", jobID, originalName, len(data))
	return jobID, nil
}

// JobStatus 根据任务 ID 返回状态记录。
func (s *ingestService) JobStatus(jobID string) (*model.UploadJob, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: 缺少任务 ID", errs.ErrInvalidInput)
	}
	return s.jobRepo.FindByID(jobID)
}
