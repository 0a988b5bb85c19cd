package quote

import (
	"context"
	"time"
)

const (
	// defaultMaxRetries はレート制限時のリトライ回数の既定値。
	defaultMaxRetries = 5
	// defaultBaseDelay はバックオフの基本単位の既定値。
	defaultBaseDelay = time.Second
)

// RetryPolicy はレート制限時のリトライ方針。
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy は5回・1秒単位のリトライ方針を返す（1, 2, 4, 8, 16秒）。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: defaultMaxRetries, BaseDelay: defaultBaseDelay}
}

// Backoff はretry回目（0始まり）のリトライ前の待機時間を返す。
// BaseDelay × 2^retry。
func (p RetryPolicy) Backoff(retry int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
	}
	return delay
}

// Sleeper は待機処理を抽象化する。テストで時間経過を置き換えるために使う。
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext はdだけ待機する。ctxが先に終了した場合はctx.Err()を返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
