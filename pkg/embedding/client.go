// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docuquery-go/internal/config"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/retry"

	"golang.org/x/time/rate"
)

// Client defines the interface for an embedding client.
// 返回的向量序列与输入文本一一对应且顺序一致。
type Client interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleClient struct {
	cfg       config.EmbeddingConfig
	client    *http.Client
	limiter   *rate.Limiter
	policy    retry.Policy
	batchSize int
}

// NewClient creates a new embedding client based on the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	timeout := 30 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	batchSize := cfg.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	policy := retry.Default()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	return &openAICompatibleClient{
		cfg:       cfg,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		policy:    policy,
		batchSize: batchSize,
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// CreateEmbeddings 将文本按提供商的最大批量切分后逐批请求。
// 任意一批失败则整体失败，调用方（摄取任务）整体重试是安全的。
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// CreateEmbedding calls the API to get the vector for a single text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatch 发送一批输入，临时性失败按策略退避重试。
func (c *openAICompatibleClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := c.policy.Do(ctx, errs.IsRetryable, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		vectors, callErr = c.callAPI(ctx, texts)
		return callErr
	})
	return vectors, err
}

func (c *openAICompatibleClient) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("%w: %v", errs.ErrTransientProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 4xx 为认证/配额类错误，重试无意义；5xx 按临时性失败处理
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			log.Errorf("[EmbeddingClient] Embedding API 返回客户端错误: %s", resp.Status)
			return nil, fmt.Errorf("%w: embedding api status %s", errs.ErrPermanentProvider, resp.Status)
		}
		log.Warnf("[EmbeddingClient] Embedding API 返回服务端错误: %s", resp.Status)
		return nil, fmt.Errorf("%w: embedding api status %s", errs.ErrTransientProvider, resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("%w: decode embedding response: %v", errs.ErrMalformedResponse, err)
	}

	// 响应必须与请求一一对应，数量不符或缺少向量都视为响应畸形
	if len(embeddingResp.Data) != len(texts) {
		log.Errorf("[EmbeddingClient] 响应数量不匹配: 请求 %d, 返回 %d", len(texts), len(embeddingResp.Data))
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", errs.ErrMalformedResponse, len(texts), len(embeddingResp.Data))
	}

	vectors := make([][]float32, len(texts))
	for i, item := range embeddingResp.Data {
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", errs.ErrMalformedResponse, i)
		}
		idx := item.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = item.Embedding
	}
	// index 字段重复会留下空位，这同样属于响应畸形，不能流向索引写入
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for position %d", errs.ErrMalformedResponse, i)
		}
	}
	return vectors, nil
}
