// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docuquery-go/internal/config"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/log"
)

// Client defines the interface for an LLM client.
// Generate 同步返回完整答案，每次问答请求只调用一次，不在内部保留重试状态。
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client based on the config.
func NewClient(cfg config.LLMConfig) Client {
	timeout := 60 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate calls the chat completions API and returns the full answer text.
func (c *openAICompatibleClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: []Message{{Role: "user", Content: prompt}},
		Stream:   false,
	}
	// 从全局配置注入生成参数（若非零值）
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[LLMClient] 调用 Chat API 失败, error: %v", err)
		return "", fmt.Errorf("%w: %v", errs.ErrTransientProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		// 凭证、配额或内容拦截类错误不重试；服务端错误按临时性失败处理
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			log.Errorf("[LLMClient] Chat API 返回客户端错误: %s, body: %s", resp.Status, string(bodyBytes))
			return "", fmt.Errorf("%w: chat api status %s", errs.ErrPermanentProvider, resp.Status)
		}
		log.Warnf("[LLMClient] Chat API 返回服务端错误: %s", resp.Status)
		return "", fmt.Errorf("%w: chat api status %s", errs.ErrTransientProvider, resp.Status)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", errs.ErrMalformedResponse, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat response has no choices", errs.ErrMalformedResponse)
	}
	return chatResp.Choices[0].Message.Content, nil
}
