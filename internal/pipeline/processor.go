// Package pipeline 定义了摄取任务的核心处理流程：
// 取回原始字节 → 提取页面文本 → 切块 → 向量化 → 写入向量索引。
package pipeline

import (
	"context"
	"fmt"

	"docuquery-go/internal/chunker"
	"docuquery-go/internal/model"
	"docuquery-go/internal/parser"
	"docuquery-go/pkg/embedding"
	"docuquery-go/pkg/errs"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/storage"
	"docuquery-go/pkg/vectorindex"
)

// Processor 封装了文件处理的所有依赖和逻辑。
type Processor struct {
	store           storage.ObjectStore
	engine          parser.Engine
	chunker         *chunker.Chunker
	embeddingClient embedding.Client
	index           vectorindex.Store
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	store storage.ObjectStore,
	engine parser.Engine,
	ck *chunker.Chunker,
	embeddingClient embedding.Client,
	index vectorindex.Store,
) *Processor {
	return &Processor{
		store:           store,
		engine:          engine,
		chunker:         ck,
		embeddingClient: embeddingClient,
		index:           index,
	}
}

// Process 是单个摄取任务的主函数。
// 任务完成的条件是该文档的每一个分块都成功写入索引：任何一个分块失败
// 都会使整个任务失败并由队列重试。分块 ID 确定性生成、索引按 ID 覆盖写入，
// 因此重试会原样重做整个文档而不产生重复条目。
func (p *Processor) Process(ctx context.Context, job *model.UploadJob) error {
	log.Infof("[Processor] 开始处理任务, JobID: %s, FileName: %s", job.ID, job.OriginalName)

	// 1. 从对象存储取回原始字节
	data, err := p.store.Fetch(ctx, job.SourceHandle)
	if err != nil {
		log.Errorf("[Processor] 取回文件失败, Handle: %s, Error: %v", job.SourceHandle, err)
		return fmt.Errorf("%w: 取回文件失败: %v", errs.ErrTransientProvider, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: 文件内容为空", errs.ErrInvalidInput)
	}
	log.Infof("[Processor] 步骤1: 文件取回成功, 大小 %d 字节", len(data))

	// 2. 提取带页码的文本
	pages, err := p.engine.Extract(data, job.OriginalName)
	if err != nil {
		// 无法解析的文档重试不会有不同结果
		log.Errorf("[Processor] 文本提取失败, FileName: %s, Error: %v", job.OriginalName, err)
		return fmt.Errorf("%w: 文本提取失败: %v", errs.ErrInvalidInput, err)
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 共 %d 页", len(pages))

	// 3. 切块
	chunks := p.chunker.Split(job.ID, job.SourceHandle, pages)
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, FileName: %s", job.OriginalName)
		return fmt.Errorf("%w: 文档不含可索引的文本", errs.ErrInvalidInput)
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 共 %d 个分块", len(chunks))

	// 4. 批量向量化
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embeddingClient.CreateEmbeddings(ctx, texts)
	if err != nil {
		log.Errorf("[Processor] 向量化失败, JobID: %s, Error: %v", job.ID, err)
		return fmt.Errorf("向量化失败: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: 向量数量 %d 与分块数量 %d 不一致", errs.ErrMalformedResponse, len(vectors), len(chunks))
	}
	log.Infof("[Processor] 步骤4: 向量化完成, 共 %d 个向量", len(vectors))

	// 5. 逐块写入索引。首个失败即中止，整个任务交给队列重试。
	for i, chunk := range chunks {
		rec := model.VectorRecord{
			ID:        chunk.ID,
			Embedding: vectors[i],
			Metadata: model.VectorMetadata{
				SourceHandle: chunk.SourceHandle,
				SourceName:   job.OriginalName,
				PageNumber:   chunk.PageNumber,
				Text:         chunk.Text,
				Checksum:     chunk.Checksum,
			},
		}
		if err := p.index.Upsert(ctx, rec); err != nil {
			log.Errorf("[Processor] 索引分块失败, ChunkID: %s, Error: %v", chunk.ID, err)
			return fmt.Errorf("索引分块 %s 失败: %w", chunk.ID, err)
		}
	}

	log.Infof("[Processor] 任务处理成功完成, JobID: %s, 索引分块数: %d", job.ID, len(chunks))
	return nil
}
