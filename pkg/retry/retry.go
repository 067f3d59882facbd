// Package retry 定义了统一的指数退避策略。
// 队列的失败重入队与外部服务网关共用同一个策略对象，避免各处散落的重试逻辑。
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy 描述一次重试预算：最大尝试次数、基础延迟与抖动比例。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      float64 // 0~1，叠加在计算出的延迟上的随机比例
}

// Default 返回默认策略：3 次尝试，200ms 基础延迟，20% 抖动。
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, Jitter: 0.2}
}

// Delay 计算第 attempt 次失败后的退避时长（attempt 从 1 开始计数）。
// 延迟按 base * 2^(attempt-1) 增长，并叠加随机抖动。
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if p.Jitter > 0 {
		d += d * p.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// Do 按策略执行 fn，直到成功、重试预算耗尽或 shouldRetry 返回 false。
// 返回最后一次的错误。ctx 取消会立即中断等待。
func (p Policy) Do(ctx context.Context, shouldRetry func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !shouldRetry(err) || attempt == attempts {
			return err
		}
		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
