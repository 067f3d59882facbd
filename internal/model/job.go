// Package model 定义了核心数据结构与数据库表对应的 Go 结构体。
package model

import "time"

// JobStatus 表示摄取任务在状态机中的位置。
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDeadLetter JobStatus = "dead-letter"
)

// Terminal 判断状态是否为终态。completed 与 dead-letter 之后任务不再流转。
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusDeadLetter
}

// UploadJob 定义了 upload_jobs 表的 ORM 模型。
// 一条记录对应一次 PDF 摄取任务，是本服务唯一持久化的任务状态。
type UploadJob struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SourceHandle string    `gorm:"type:varchar(255);not null" json:"sourceHandle"`
	OriginalName string    `gorm:"type:varchar(255);not null" json:"originalName"`
	Status       JobStatus `gorm:"type:varchar(16);not null;default:'queued'" json:"status"`
	Attempts     int       `gorm:"not null;default:0" json:"attempts"`
	LastError    string    `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UploadJob) TableName() string {
	return "upload_jobs"
}
