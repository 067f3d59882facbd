// Package chunker 将提取出的页面文本切分为带重叠的分块。
package chunker

import (
	"strings"

	"docuquery-go/internal/model"
	"docuquery-go/internal/parser"
)

// Chunker 按固定目标长度与重叠长度切分文本。
// 切分按 rune 计数，分块不跨页，相同输入永远产生相同的分块 ID 与文本。
type Chunker struct {
	size    int
	overlap int
}

// New 创建一个 Chunker。size 必须大于 overlap，否则回退到默认值 1000/100。
func New(size, overlap int) *Chunker {
	if size <= 0 || overlap < 0 || size <= overlap {
		size, overlap = 1000, 100
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split 将一个任务的所有页面切分为有序的分块序列。
// 空白页被跳过，页内分块序号从 0 开始。
func (c *Chunker) Split(jobID, sourceHandle string, pages []parser.Page) []model.DocumentChunk {
	var chunks []model.DocumentChunk
	for _, page := range pages {
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}
		for seq, piece := range c.splitText(text) {
			chunks = append(chunks, model.DocumentChunk{
				ID:           model.ChunkID(jobID, page.PageNumber, seq),
				SourceHandle: sourceHandle,
				PageNumber:   page.PageNumber,
				Text:         piece,
				Checksum:     model.TextChecksum(piece),
			})
		}
	}
	return chunks
}

// splitText 将单页文本按滑动窗口切分，相邻分块共享 overlap 个 rune。
func (c *Chunker) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var pieces []string
	step := c.size - c.overlap
	for i := 0; i < len(runes); i += step {
		end := i + c.size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return pieces
}
