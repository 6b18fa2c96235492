package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy - 지수 백오프 재시도 정책
// MaxRetries: 첫 시도 이후 추가 시도 횟수 (0 = 재시도 없음)
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Retryable 이 nil 이면 모든 에러를 재시도
	Retryable func(error) bool
	OnRetry   func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy - provider 호출 기본 정책 (1s 시작, 10s 상한)
func DefaultPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// Delay - n번째 재시도 전 대기 시간 (base * 2^(n-1), MaxDelay 상한)
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do - fn 을 정책에 따라 실행. attempt 는 0부터 시작
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, lastErr
			case <-timer.C:
			}
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
	}

	if maxRetries == 0 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("giving up after %d attempts: %w", maxRetries+1, lastErr)
}
