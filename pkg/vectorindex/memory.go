package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/errs"
)

// MemoryStore 是 Store 的进程内实现：暴力余弦相似度检索。
// 用于测试和无外部索引的单机部署。
type MemoryStore struct {
	mu      sync.RWMutex
	dims    int
	order   []string // 按插入顺序记录 ID，用于确定性的同分排序
	records map[string]model.VectorRecord
}

// NewMemory 创建指定维度的内存索引。
func NewMemory(dims int) *MemoryStore {
	return &MemoryStore{
		dims:    dims,
		records: make(map[string]model.VectorRecord),
	}
}

// Upsert 按 ID 覆盖写入。重复 ID 不产生新条目，保持首次插入的顺序位置。
func (s *MemoryStore) Upsert(_ context.Context, rec model.VectorRecord) error {
	if len(rec.Embedding) != s.dims {
		return fmt.Errorf("%w: got %d, index expects %d", errs.ErrDimensionMismatch, len(rec.Embedding), s.dims)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

// Query 计算查询向量与所有记录的余弦相似度，返回降序前 k 条。
// 相似度相同的命中按插入顺序排列，保证结果可复现。
func (s *MemoryStore) Query(_ context.Context, vector []float32, k int) ([]model.SearchResult, error) {
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: got %d, index expects %d", errs.ErrDimensionMismatch, len(vector), s.dims)
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]model.SearchResult, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		results = append(results, model.SearchResult{
			ID:       rec.ID,
			Score:    cosineSimilarity(vector, rec.Embedding),
			Metadata: rec.Metadata,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Len 返回当前索引中的记录数。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close 释放底层资源。
func (s *MemoryStore) Close() error {
	return nil
}

// cosineSimilarity 计算两个向量的余弦相似度，零向量返回 0。
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
