// Package vectorindex 提供了按余弦相似度检索分块向量的索引适配层。
package vectorindex

import (
	"context"

	"docuquery-go/internal/model"
)

// Store 是向量索引的能力接口。
// Upsert 按 ID 幂等覆盖写入；Query 返回按相似度降序排列的前 k 条命中。
// 后端不可达时两者都必须返回 errs.ErrIndexUnavailable，而不是空结果。
type Store interface {
	Upsert(ctx context.Context, rec model.VectorRecord) error
	Query(ctx context.Context, vector []float32, k int) ([]model.SearchResult, error)
	Close() error
}
