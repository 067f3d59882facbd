package service

import (
	"context"
	"errors"
	"fmt"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/llm"
	"docuquery-go/pkg/log"
)

// ChatService 定义了问答操作的接口。
type ChatService interface {
	// AnswerQuery 执行完整的检索增强问答：检索 → 组装提示词 → 生成 → 引用。
	AnswerQuery(ctx context.Context, message string) (*model.ChatAnswer, error)
}

type chatService struct {
	searchService SearchService
	llmClient     llm.Client
	topK          int
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(searchService SearchService, llmClient llm.Client, topK int) ChatService {
	if topK <= 0 {
		topK = 2
	}
	return &chatService{
		searchService: searchService,
		llmClient:     llmClient,
		topK:          topK,
	}
}

// AnswerQuery 协调 RAG 流程并返回带引用的答案。
// 生成调用遇到临时性失败时整体重试一次；检索失败直接上抛，由调用方
// 区分"暂不可用"与一般失败。原始错误保留在日志中。
func (s *chatService) AnswerQuery(ctx context.Context, message string) (*model.ChatAnswer, error) {
	results, err := s.searchService.Retrieve(ctx, message, s.topK)
	if err != nil {
		return nil, err
	}

	prompt := s.searchService.BuildPrompt(message, results)

	answer, err := s.llmClient.Generate(ctx, prompt)
	if err != nil && errors.Is(err, errs.ErrTransientProvider) {
		log.Warnf("[ChatService] 生成调用临时失败, 重试一次: %v", err)
		answer, err = s.llmClient.Generate(ctx, prompt)
	}
	if err != nil {
		log.Errorf("[ChatService] 生成回答失败: %v", err)
		return nil, fmt.Errorf("生成回答失败: %w", err)
	}

	sources := make([]model.SourceRef, 0, len(results))
	for _, r := range results {
		sources = append(sources, model.SourceRef{
			PageNumber: r.Metadata.PageNumber,
			SourceName: r.Metadata.SourceName,
			Excerpt:    excerpt(r.Metadata.Text, 200),
			Score:      r.Score,
		})
	}
	return &model.ChatAnswer{Answer: answer, Sources: sources}, nil
}

// excerpt 截取引用摘要的前 n 个 rune。
func excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
