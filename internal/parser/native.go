package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Native 在进程内解析 PDF，不依赖外部服务。
type Native struct{}

// NewNative 创建 native 提取引擎。
func NewNative() *Native {
	return &Native{}
}

// Extract 逐页读取 PDF 的纯文本。空白页会被保留为页码存在、文本为空的条目，
// 由上游分块逻辑自行跳过，保证页码与原始文档一致。
func (n *Native) Extract(data []byte, fileName string) ([]Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("解析 PDF 失败 (%s): %w", fileName, err)
	}

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{PageNumber: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("读取第 %d 页文本失败 (%s): %w", i, fileName, err)
		}
		pages = append(pages, Page{PageNumber: i, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}
