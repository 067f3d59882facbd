package handler

import (
	"errors"
	"net/http"

	"docuquery-go/internal/service"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责处理问答请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ChatRequest 定义了问答 API 的请求体结构。
type ChatRequest struct {
	Message string `json:"message"`
}

// Chat 执行一次检索增强问答。
// 内部错误细节不下发给调用方，只区分"输入非法"、"暂不可用"和一般失败。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	answer, err := h.chatService.AnswerQuery(c.Request.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "问题不能为空"})
		case errors.Is(err, errs.ErrIndexUnavailable):
			log.Error("Chat: 向量索引不可用", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "服务暂时不可用，请稍后重试"})
		default:
			log.Error("Chat: 问答失败", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "回答生成失败，请稍后重试"})
		}
		return
	}

	c.JSON(http.StatusOK, answer)
}
