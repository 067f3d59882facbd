// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"

	"docuquery-go/internal/model"
)

// JobRepository 接口定义了摄取任务状态记录的持久化操作。
// 任务记录是队列之外唯一的持久化状态，所有状态流转都经由这里落库。
type JobRepository interface {
	Create(job *model.UploadJob) error
	UpdateStatus(jobID string, status model.JobStatus, attempts int, lastError string) error
	FindByID(jobID string) (*model.UploadJob, error)
	FindRecent(limit int) ([]model.UploadJob, error)
}

// jobRepository 是 JobRepository 接口的 GORM 实现。
type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository 创建一个新的 JobRepository 实例，并确保表结构存在。
func NewJobRepository(db *gorm.DB) (JobRepository, error) {
	if err := db.AutoMigrate(&model.UploadJob{}); err != nil {
		return nil, err
	}
	return &jobRepository{db: db}, nil
}

// Create 在数据库中创建一条新的任务记录。
func (r *jobRepository) Create(job *model.UploadJob) error {
	return r.db.Create(job).Error
}

// UpdateStatus 更新任务的状态、尝试次数与最近一次错误。
func (r *jobRepository) UpdateStatus(jobID string, status model.JobStatus, attempts int, lastError string) error {
	return r.db.Model(&model.UploadJob{}).Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     status,
			"attempts":   attempts,
			"last_error": lastError,
		}).Error
}

// FindByID 根据任务 ID 检索任务记录。
func (r *jobRepository) FindByID(jobID string) (*model.UploadJob, error) {
	var job model.UploadJob
	if err := r.db.Where("id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// FindRecent 按创建时间倒序返回最近的任务记录，用于运维巡检死信任务。
func (r *jobRepository) FindRecent(limit int) ([]model.UploadJob, error) {
	var jobs []model.UploadJob
	err := r.db.Order("created_at desc").Limit(limit).Find(&jobs).Error
	return jobs, err
}
