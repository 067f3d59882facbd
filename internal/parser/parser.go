// Package parser 负责从 PDF 原始字节中提取带页码的文本。
package parser

import (
	"fmt"

	"docuquery-go/internal/config"
)

// Page 是提取结果的最小单位：页码从 1 开始，文本为该页的纯文本内容。
type Page struct {
	PageNumber int
	Text       string
}

// Engine 抽象了文本提取实现，摄取管道只依赖这一接口。
type Engine interface {
	Extract(data []byte, fileName string) ([]Page, error)
}

// NewEngine 根据配置选择提取引擎。默认使用进程内的 native 引擎。
func NewEngine(cfg config.ParserConfig) (Engine, error) {
	switch cfg.Engine {
	case "", "native":
		return NewNative(), nil
	case "tika":
		if cfg.TikaServerURL == "" {
			return nil, fmt.Errorf("parser.engine 为 tika 时必须配置 tika_server_url")
		}
		return NewTika(cfg.TikaServerURL), nil
	default:
		return nil, fmt.Errorf("未知的提取引擎: %s", cfg.Engine)
	}
}
