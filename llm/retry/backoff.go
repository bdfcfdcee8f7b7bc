package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/BaSui01/factflow/types"
)

// Policy 定义模型服务调用的重试策略
type Policy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 首次重试前的等待
	MaxDelay     time.Duration // 单次等待上限
	Multiplier   float64       // 指数退避倍数
	Jitter       bool          // ±25% 随机抖动

	// Retryable 判定错误能否重试，默认使用 types.IsRetryable
	Retryable func(err error) bool
	// OnRetry 在每次等待前回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回推理服务调用的默认策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 200 * time.Millisecond
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	if p.Retryable == nil {
		p.Retryable = types.IsRetryable
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, the retry
// budget runs out, or ctx is done. The last error is returned unwrapped so
// callers can still inspect its types.Error code.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry aborted after %d attempt(s): %w", attempt, lastErr)
			case <-timer.C:
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil || !p.Retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// Delay returns the wait before the given retry attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		return 0
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		delay += (rand.Float64()*2 - 1) * delay * 0.25
	}
	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}
