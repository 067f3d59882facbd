package parser

import (
	"bytes"
	"fmt"
	"strings"

	"docuquery-go/pkg/tika"
)

// Tika 通过外部 Apache Tika 服务器提取文本。
// Tika 的纯文本输出以换页符分隔 PDF 页面，据此恢复页码。
type Tika struct {
	client *tika.Client
}

// NewTika 创建 tika 提取引擎。
func NewTika(serverURL string) *Tika {
	return &Tika{client: tika.NewClient(serverURL)}
}

// Extract 调用 Tika 提取全文并按换页符切分为页。
func (t *Tika) Extract(data []byte, fileName string) ([]Page, error) {
	text, err := t.client.ExtractText(bytes.NewReader(data), fileName)
	if err != nil {
		return nil, fmt.Errorf("使用 Tika 提取文本失败 (%s): %w", fileName, err)
	}

	segments := strings.Split(text, "\f")
	pages := make([]Page, 0, len(segments))
	for i, seg := range segments {
		pages = append(pages, Page{PageNumber: i + 1, Text: strings.TrimSpace(seg)})
	}
	return pages, nil
}
