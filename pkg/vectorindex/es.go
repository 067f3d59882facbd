package vectorindex

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"docuquery-go/internal/config"
	"docuquery-go/internal/model"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ESStore 是 Store 的 Elasticsearch 实现，使用 dense_vector + cosine 相似度。
type ESStore struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
}

// esDocument 是分块向量在 Elasticsearch 索引中的文档结构。
type esDocument struct {
	VectorID     string    `json:"vector_id"`
	SourceHandle string    `json:"source_handle"`
	SourceName   string    `json:"source_name"`
	PageNumber   int       `json:"page_number"`
	TextContent  string    `json:"text_content"`
	Checksum     string    `json:"checksum"`
	Vector       []float32 `json:"vector"`
}

// NewES 初始化 Elasticsearch 客户端并确保索引存在。
func NewES(esCfg config.ElasticsearchConfig, dims int) (*ESStore, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	s := &ESStore{client: client, indexName: esCfg.IndexName, dims: dims}
	if err := s.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则按配置的向量维度创建它。
func (s *ESStore) createIndexIfNotExists() error {
	res, err := s.client.Indices.Exists([]string{s.indexName})
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexUnavailable, err)
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"source_handle": { "type": "keyword" },
				"source_name": { "type": "keyword" },
				"page_number": { "type": "integer" },
				"text_content": { "type": "text" },
				"checksum": { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, s.dims)

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("%w: create index: %v", errs.ErrIndexUnavailable, err)
	}
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
	}

	log.Infof("索引 '%s' 创建成功 (dims=%d)", s.indexName, s.dims)
	return nil
}

// Upsert 将单条向量记录写入索引。DocumentID 即记录 ID，重复写入覆盖旧值。
func (s *ESStore) Upsert(ctx context.Context, rec model.VectorRecord) error {
	if len(rec.Embedding) != s.dims {
		return fmt.Errorf("%w: got %d, index expects %d", errs.ErrDimensionMismatch, len(rec.Embedding), s.dims)
	}

	doc := esDocument{
		VectorID:     rec.ID,
		SourceHandle: rec.Metadata.SourceHandle,
		SourceName:   rec.Metadata.SourceName,
		PageNumber:   rec.Metadata.PageNumber,
		TextContent:  rec.Metadata.Text,
		Checksum:     rec.Metadata.Checksum,
		Vector:       rec.Embedding,
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      s.indexName,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("%w: index document: %s", errs.ErrIndexUnavailable, res.Status())
	}
	return nil
}

// Query 执行 kNN 查询，返回按余弦相似度降序排列的前 k 条命中。
func (s *ESStore) Query(ctx context.Context, vector []float32, k int) ([]model.SearchResult, error) {
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: got %d, index expects %d", errs.ErrDimensionMismatch, len(vector), s.dims)
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
		},
		"size": k,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIndexUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 查询返回错误: %s", res.String())
		return nil, fmt.Errorf("%w: search: %s", errs.ErrIndexUnavailable, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
				Score  float64    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.SearchResult, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.SearchResult{
			ID:    hit.Source.VectorID,
			Score: hit.Score,
			Metadata: model.VectorMetadata{
				SourceHandle: hit.Source.SourceHandle,
				SourceName:   hit.Source.SourceName,
				PageNumber:   hit.Source.PageNumber,
				Text:         hit.Source.TextContent,
				Checksum:     hit.Source.Checksum,
			},
		})
	}
	return results, nil
}

// Close 释放底层资源。Elasticsearch 客户端无需显式关闭。
func (s *ESStore) Close() error {
	return nil
}
