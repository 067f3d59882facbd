// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"

	"docuquery-go/internal/service"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理 PDF 上传请求。
type UploadHandler struct {
	ingestService service.IngestService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(ingestService service.IngestService) *UploadHandler {
	return &UploadHandler{ingestService: ingestService}
}

// UploadPDF 接收 multipart 表单中的 PDF 文件并触发异步摄取。
func (h *UploadHandler) UploadPDF(c *gin.Context) {
	file, header, err := c.Request.FormFile("pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未上传 PDF 文件"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取上传内容失败"})
		return
	}

	jobID, err := h.ingestService.SubmitIngestJob(c.Request.Context(), data, header.Filename)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("UploadPDF: 提交摄取任务失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "PDF 已上传并加入处理队列",
		"jobId":   jobID,
	})
}
