// Package errs 定义了贯穿整个处理链路的错误分类。
// 队列的重试判定和各外部服务网关统一依赖这里的哨兵错误。
package errs

import "errors"

var (
	// ErrInvalidInput 表示调用方输入非法（空查询、空文件等），直接拒绝，不入队、不重试。
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransientProvider 表示外部服务的临时性失败（网络错误、超时、5xx），可按退避策略重试。
	ErrTransientProvider = errors.New("transient provider failure")

	// ErrPermanentProvider 表示外部服务的永久性失败（认证、配额、4xx），重试无意义。
	ErrPermanentProvider = errors.New("permanent provider failure")

	// ErrMalformedResponse 表示外部服务返回了结构非法的响应（数量不匹配、缺少向量等），视为永久失败。
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrIndexUnavailable 表示向量索引不可达。调用方必须将其视为硬失败，而不是"无结果"。
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch 表示向量维度与索引配置不一致，属于配置错误，不重试。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// IsRetryable 判断一个错误是否值得重试。
// 临时性故障与索引不可达可以重试；输入非法、永久失败、响应畸形和维度错误不重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransientProvider) || errors.Is(err, ErrIndexUnavailable) {
		return true
	}
	if errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPermanentProvider) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrDimensionMismatch) {
		return false
	}
	// 未分类的错误按临时性处理，交给重试预算兜底。
	return true
}
