package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/vectorindex"
)

// scriptedLLM 按脚本依次返回结果，记录收到的提示词。
type scriptedLLM struct {
	responses []string
	errors    []error
	calls     int
	prompts   []string
}

func (f *scriptedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if i < len(f.errors) && f.errors[i] != nil {
		return "", f.errors[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", fmt.Errorf("%w: no scripted response", errs.ErrMalformedResponse)
}

func newChatFixture(t *testing.T, llmClient *scriptedLLM) ChatService {
	t.Helper()
	embedder := &countingEmbedder{vectors: map[string][]float32{"发票总额是多少?": {1, 0}}}
	index := vectorindex.NewMemory(2)
	seedIndex(t, index,
		model.VectorRecord{ID: "job1_1_0", Embedding: []float32{1, 0}, Metadata: model.VectorMetadata{
			SourceName: "invoice.pdf", PageNumber: 1, Text: "发票总额: 500 元",
		}},
		model.VectorRecord{ID: "job1_2_0", Embedding: []float32{0, 1}, Metadata: model.VectorMetadata{
			SourceName: "invoice.pdf", PageNumber: 2, Text: "付款条款",
		}},
	)
	search := NewSearchService(embedder, index, 0)
	return NewChatService(search, llmClient, 2)
}

func TestAnswerQuery_ReturnsAnswerWithSources(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{"发票总额为 500 元 [1]"}}
	svc := newChatFixture(t, llmClient)

	answer, err := svc.AnswerQuery(context.Background(), "发票总额是多少?")
	require.NoError(t, err)
	assert.Equal(t, "发票总额为 500 元 [1]", answer.Answer)

	require.Len(t, answer.Sources, 2)
	// 引用顺序与相似度排序一致，最相关的在前
	assert.Equal(t, 1, answer.Sources[0].PageNumber)
	assert.Equal(t, "invoice.pdf", answer.Sources[0].SourceName)
	assert.Contains(t, answer.Sources[0].Excerpt, "500")
	assert.Greater(t, answer.Sources[0].Score, answer.Sources[1].Score)

	// 提示词里带有检索到的参考内容
	require.Len(t, llmClient.prompts, 1)
	assert.Contains(t, llmClient.prompts[0], "发票总额: 500 元")
}

func TestAnswerQuery_RetriesTransientGenerationOnce(t *testing.T) {
	llmClient := &scriptedLLM{
		errors:    []error{fmt.Errorf("%w: 502", errs.ErrTransientProvider), nil},
		responses: []string{"", "重试后的答案"},
	}
	svc := newChatFixture(t, llmClient)

	answer, err := svc.AnswerQuery(context.Background(), "发票总额是多少?")
	require.NoError(t, err)
	assert.Equal(t, "重试后的答案", answer.Answer)
	assert.Equal(t, 2, llmClient.calls)
}

func TestAnswerQuery_PermanentGenerationNotRetried(t *testing.T) {
	llmClient := &scriptedLLM{
		errors: []error{fmt.Errorf("%w: 401", errs.ErrPermanentProvider)},
	}
	svc := newChatFixture(t, llmClient)

	_, err := svc.AnswerQuery(context.Background(), "发票总额是多少?")
	assert.ErrorIs(t, err, errs.ErrPermanentProvider)
	assert.Equal(t, 1, llmClient.calls)
}

func TestAnswerQuery_EmptyMessageRejected(t *testing.T) {
	llmClient := &scriptedLLM{}
	svc := newChatFixture(t, llmClient)

	_, err := svc.AnswerQuery(context.Background(), "")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Equal(t, 0, llmClient.calls)
}

func TestAnswerQuery_IndexUnavailablePropagates(t *testing.T) {
	embedder := &countingEmbedder{}
	search := NewSearchService(embedder, failingIndex{}, 0)
	svc := NewChatService(search, &scriptedLLM{}, 2)

	_, err := svc.AnswerQuery(context.Background(), "问题")
	assert.ErrorIs(t, err, errs.ErrIndexUnavailable)
}
