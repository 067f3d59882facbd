package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/vectorindex"
)

// countingEmbedder 记录调用次数，按固定映射返回向量。
type countingEmbedder struct {
	calls   int
	vectors map[string][]float32
	err     error
}

func (f *countingEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.CreateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *countingEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 1}, nil
}

func seedIndex(t *testing.T, index vectorindex.Store, records ...model.VectorRecord) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, index.Upsert(context.Background(), r))
	}
}

func TestRetrieve_EmptyQueryRejectedWithoutProviderCalls(t *testing.T) {
	embedder := &countingEmbedder{}
	svc := NewSearchService(embedder, vectorindex.NewMemory(2), 0)

	_, err := svc.Retrieve(context.Background(), "   ", 2)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Equal(t, 0, embedder.calls)
}

func TestRetrieve_RanksBySimilarity(t *testing.T) {
	embedder := &countingEmbedder{vectors: map[string][]float32{"发票金额": {1, 0}}}
	index := vectorindex.NewMemory(2)
	seedIndex(t, index,
		model.VectorRecord{ID: "j_1_0", Embedding: []float32{1, 0}, Metadata: model.VectorMetadata{SourceName: "a.pdf", PageNumber: 1, Text: "发票总额 500 元"}},
		model.VectorRecord{ID: "j_2_0", Embedding: []float32{0, 1}, Metadata: model.VectorMetadata{SourceName: "a.pdf", PageNumber: 2, Text: "附录"}},
	)

	svc := NewSearchService(embedder, index, 0)
	results, err := svc.Retrieve(context.Background(), "发票金额", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "j_1_0", results[0].ID)
	assert.Equal(t, 1, results[0].Metadata.PageNumber)
}

func TestRetrieve_IndexUnavailablePropagates(t *testing.T) {
	embedder := &countingEmbedder{}
	svc := NewSearchService(embedder, failingIndex{}, 0)

	_, err := svc.Retrieve(context.Background(), "问题", 2)
	assert.ErrorIs(t, err, errs.ErrIndexUnavailable)
}

// failingIndex 模拟向量索引不可用。
type failingIndex struct{}

func (failingIndex) Upsert(context.Context, model.VectorRecord) error {
	return errs.ErrIndexUnavailable
}

func (failingIndex) Query(context.Context, []float32, int) ([]model.SearchResult, error) {
	return nil, fmt.Errorf("%w: connection refused", errs.ErrIndexUnavailable)
}

func (failingIndex) Close() error { return nil }

func TestBuildPrompt_IncludesSourcesAndQuestion(t *testing.T) {
	svc := NewSearchService(&countingEmbedder{}, vectorindex.NewMemory(2), 0)

	results := []model.SearchResult{
		{ID: "j_1_0", Score: 0.9, Metadata: model.VectorMetadata{SourceName: "report.pdf", PageNumber: 3, Text: "第三页内容"}},
		{ID: "j_5_1", Score: 0.7, Metadata: model.VectorMetadata{SourceName: "report.pdf", PageNumber: 5, Text: "第五页内容"}},
	}
	prompt := svc.BuildPrompt("报告讲了什么?", results)

	assert.Contains(t, prompt, "[1] (report.pdf, 第3页) 第三页内容")
	assert.Contains(t, prompt, "[2] (report.pdf, 第5页) 第五页内容")
	assert.Contains(t, prompt, "问题: 报告讲了什么?")
	// 编号顺序与检索结果一致
	assert.Less(t, strings.Index(prompt, "[1]"), strings.Index(prompt, "[2]"))
}

func TestBuildPrompt_TruncatesOversizedChunk(t *testing.T) {
	svc := NewSearchService(&countingEmbedder{}, vectorindex.NewMemory(2), 10)

	long := strings.Repeat("长", 25)
	prompt := svc.BuildPrompt("q", []model.SearchResult{
		{Metadata: model.VectorMetadata{SourceName: "a.pdf", PageNumber: 1, Text: long}},
	})

	assert.Contains(t, prompt, truncationMarker)
	assert.NotContains(t, prompt, long)
	assert.Contains(t, prompt, strings.Repeat("长", 10))
}

func TestBuildPrompt_NoResults(t *testing.T) {
	svc := NewSearchService(&countingEmbedder{}, vectorindex.NewMemory(2), 0)
	prompt := svc.BuildPrompt("问题", nil)
	assert.Contains(t, prompt, "（本轮无检索结果）")
	assert.Contains(t, prompt, "问题: 问题")
}
