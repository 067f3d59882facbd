// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/embedding"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/vectorindex"
)

// 提示词的固定前导说明。
const promptPreamble = "你是一个文档问答助手。请仅依据下面给出的参考内容回答用户的问题，" +
	"回答时注明所引用的来源编号。如果参考内容不足以回答问题，请直接说明无法回答。"

// 超长分块被截断时附加的显式标记，避免内容悄悄丢失。
const truncationMarker = "…[内容截断]"

// SearchService 接口定义了检索与提示词组装操作。
type SearchService interface {
	// Retrieve 将问题向量化后在索引中取回 topK 条最相近的分块。
	Retrieve(ctx context.Context, query string, topK int) ([]model.SearchResult, error)
	// BuildPrompt 把检索结果组装为带来源标注的生成提示词。
	BuildPrompt(query string, results []model.SearchResult) string
}

type searchService struct {
	embeddingClient embedding.Client
	index           vectorindex.Store
	maxContextChars int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, index vectorindex.Store, maxContextChars int) SearchService {
	if maxContextChars <= 0 {
		maxContextChars = 4000
	}
	return &searchService{
		embeddingClient: embeddingClient,
		index:           index,
		maxContextChars: maxContextChars,
	}
}

// Retrieve 执行语义检索。空问题直接拒绝，不触发任何外部调用。
func (s *searchService) Retrieve(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: 查询内容为空", errs.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = 2
	}

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("向量化查询失败: %w", err)
	}

	results, err := s.index.Query(ctx, queryVector, topK)
	if err != nil {
		log.Errorf("[SearchService] 向量索引查询失败: %v", err)
		return nil, fmt.Errorf("向量索引查询失败: %w", err)
	}
	log.Infof("[SearchService] 检索完成, query: '%s', 命中 %d 条", query, len(results))
	return results, nil
}

// BuildPrompt 组装提示词：固定前导 + 带来源/页码标注的分块全文 + 原始问题。
// 分块文本原样纳入；只有超过最大上下文长度时才截断，并附加显式标记。
func (s *searchService) BuildPrompt(query string, results []model.SearchResult) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n参考内容:\n")
	if len(results) == 0 {
		b.WriteString("（本轮无检索结果）\n")
	}
	for i, r := range results {
		text := r.Metadata.Text
		if runes := []rune(text); len(runes) > s.maxContextChars {
			text = string(runes[:s.maxContextChars]) + truncationMarker
		}
		b.WriteString(fmt.Sprintf("[%d] (%s, 第%d页) %s\n", i+1, r.Metadata.SourceName, r.Metadata.PageNumber, text))
	}
	b.WriteString("\n问题: ")
	b.WriteString(query)
	return b.String()
}
