package handler

import (
	"net/http"

	"docuquery-go/internal/service"

	"github.com/gin-gonic/gin"
)

// JobHandler 负责查询摄取任务状态。
type JobHandler struct {
	ingestService service.IngestService
}

// NewJobHandler 创建一个新的 JobHandler 实例。
func NewJobHandler(ingestService service.IngestService) *JobHandler {
	return &JobHandler{ingestService: ingestService}
}

// GetJobStatus 返回任务的状态记录，死信任务同样可查。
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("jobId")
	job, err := h.ingestService.JobStatus(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	c.JSON(http.StatusOK, job)
}
