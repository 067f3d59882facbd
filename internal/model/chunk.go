package model

import (
	"crypto/md5"
	"fmt"
)

// DocumentChunk 是文档切块后的最小处理单元。
// ID 由 jobID、页码和块序号确定性生成，同一任务重复处理产生完全相同的 ID。
type DocumentChunk struct {
	ID           string `json:"id"`
	SourceHandle string `json:"sourceHandle"`
	PageNumber   int    `json:"pageNumber"`
	Text         string `json:"text"`
	Checksum     string `json:"checksum"`
}

// ChunkID 生成确定性的分块标识，格式为 <jobID>_<页码>_<块序号>。
func ChunkID(jobID string, pageNumber, seq int) string {
	return fmt.Sprintf("%s_%d_%d", jobID, pageNumber, seq)
}

// TextChecksum 计算分块文本的 MD5 校验和，用于识别无变化的重复索引。
func TextChecksum(text string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(text)))
}

// VectorMetadata 是随向量一起写入索引的元数据，检索命中后用于溯源。
type VectorMetadata struct {
	SourceHandle string `json:"source_handle"`
	SourceName   string `json:"source_name"`
	PageNumber   int    `json:"page_number"`
	Text         string `json:"text_content"`
	Checksum     string `json:"checksum"`
}

// VectorRecord 是分块在向量索引中的存储形态。ID 与分块 ID 一致，按 ID 覆盖写入。
type VectorRecord struct {
	ID        string         `json:"vector_id"`
	Embedding []float32      `json:"vector"`
	Metadata  VectorMetadata `json:"metadata"`
}

// SearchResult 表示一次相似度检索的单条命中，按相似度降序排列。
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata VectorMetadata `json:"metadata"`
}

// SourceRef 是返回给调用方的引用摘要。
type SourceRef struct {
	PageNumber int     `json:"pageNumber"`
	SourceName string  `json:"sourceName"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

// ChatAnswer 是一次问答请求的响应：生成的答案加上有序的引用来源。不做持久化。
type ChatAnswer struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}
