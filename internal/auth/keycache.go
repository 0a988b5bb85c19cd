// Package auth はIDプロバイダが発行するRS256署名トークンの検証を提供する。
// 署名鍵はJWKSから取得してプロセス内にキャッシュし、検証ごとのネットワーク呼び出しは行わない。
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// SigningKey はIDプロバイダの公開署名鍵を表す。生成後は変更しない。
type SigningKey struct {
	KeyID     string
	Algorithm string
	PublicKey *rsa.PublicKey
}

// KeySetFetcher は鍵セットの取得元を抽象化するインターフェース。
type KeySetFetcher interface {
	FetchKeySet(ctx context.Context) (map[string]SigningKey, error)
}

// MetricsRecorder は認証まわりのメトリクス記録に必要なインターフェース。
type MetricsRecorder interface {
	RecordKeyRefresh(outcome string)
	RecordAuthFailure(reason string)
}

type noopRecorder struct{}

func (noopRecorder) RecordKeyRefresh(string)  {}
func (noopRecorder) RecordAuthFailure(string) {}

var (
	// ErrEmptyKeySet は取得した鍵セットに利用可能な鍵が1つも無いことを示す。
	ErrEmptyKeySet = errors.New("key set contains no usable signing keys")
	// ErrRefreshThrottled は最小更新間隔内のため更新を見送ったことを示す。
	ErrRefreshThrottled = errors.New("key refresh throttled")
)

const refreshKey = "refresh"

// refreshMode は再取得の契機。最小更新間隔の扱いが異なる。
type refreshMode int

const (
	// refreshStartup は起動時の取得。間隔の制限を受けず、試行時刻を記録する。
	refreshStartup refreshMode = iota
	// refreshOnMiss は未知のkidによる取得。間隔の制限を受け、試行時刻を記録する。
	refreshOnMiss
	// refreshScheduled は定期取得。間隔の制限を受けず、試行時刻も記録しない。
	refreshScheduled
)

// KeyCacheConfig はKeyCacheの設定を保持する。
type KeyCacheConfig struct {
	// MinRefreshInterval は未知のkidによる更新の最小間隔。0の場合は制限しない。
	// 0では未知のkidを持つトークンごとにJWKSを取得する（同時のものはsingleflightで1回になる）。
	// 定期更新はこの間隔に含めないため、定期更新の直後でもkid不一致時の1回の再取得は妨げられない。
	MinRefreshInterval time.Duration
	// FetchTimeout は1回の鍵セット取得のタイムアウト。
	FetchTimeout time.Duration
	Metrics      MetricsRecorder
	Logger       *slog.Logger
}

// KeyCache はkid -> SigningKey の対応をプロセス内に保持する。
//
// 読み取りはatomic.Pointerによるロックフリーで、更新はsingleflightで1本に集約される。
// 更新中も読み取り側は直前の鍵セットを参照し続ける。
// 更新が失敗した場合や空の鍵セットが返った場合は直前の鍵セットを保持する。
type KeyCache struct {
	fetcher KeySetFetcher
	config  KeyCacheConfig
	keys    atomic.Pointer[map[string]SigningKey]
	group   singleflight.Group

	mu          sync.Mutex
	lastAttempt time.Time
	now         func() time.Time
}

// NewKeyCache は新しいKeyCacheを生成する。鍵は保持していないため、起動時にLoadを呼ぶこと。
func NewKeyCache(fetcher KeySetFetcher, config KeyCacheConfig) *KeyCache {
	if config.Metrics == nil {
		config.Metrics = noopRecorder{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}
	c := &KeyCache{
		fetcher: fetcher,
		config:  config,
		now:     time.Now,
	}
	empty := map[string]SigningKey{}
	c.keys.Store(&empty)
	return c
}

// Load は起動時に鍵セットを取得する。取得できない場合や空の場合はエラーを返す。
func (c *KeyCache) Load(ctx context.Context) error {
	if err := c.refresh(ctx, refreshStartup); err != nil {
		return fmt.Errorf("failed to load signing keys: %w", err)
	}
	return nil
}

// Refresh は未知のkidを受けて鍵セットを再取得する。MinRefreshInterval内の場合はErrRefreshThrottledを返す。
// 同時に呼ばれた場合は1回の取得に集約され、全員が同じ結果を受け取る。
func (c *KeyCache) Refresh(ctx context.Context) error {
	return c.refresh(ctx, refreshOnMiss)
}

// Reload は定期更新用の再取得。MinRefreshIntervalの判定に使う試行時刻を更新しない。
func (c *KeyCache) Reload(ctx context.Context) error {
	return c.refresh(ctx, refreshScheduled)
}

// Lookup はkidに対応する鍵を返す。
func (c *KeyCache) Lookup(kid string) (SigningKey, bool) {
	keys := *c.keys.Load()
	key, ok := keys[kid]
	return key, ok
}

// Len は現在保持している鍵の数を返す。
func (c *KeyCache) Len() int {
	return len(*c.keys.Load())
}

func (c *KeyCache) refresh(ctx context.Context, mode refreshMode) error {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		if mode == refreshOnMiss && !c.allowAttempt() {
			c.config.Metrics.RecordKeyRefresh("throttled")
			return nil, ErrRefreshThrottled
		}
		if mode != refreshScheduled {
			c.markAttempt()
		}

		// 呼び出し元のキャンセルで共有中の取得が中断されないよう切り離す
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.FetchTimeout)
		defer cancel()

		keys, err := c.fetcher.FetchKeySet(fetchCtx)
		if err != nil {
			c.config.Metrics.RecordKeyRefresh("error")
			c.config.Logger.Warn("signing key refresh failed, keeping previous key set",
				slog.String("error", err.Error()),
				slog.Int("key_count", c.Len()),
			)
			return nil, err
		}
		if len(keys) == 0 {
			c.config.Metrics.RecordKeyRefresh("empty")
			c.config.Logger.Warn("signing key refresh returned empty key set, keeping previous key set",
				slog.Int("key_count", c.Len()),
			)
			return nil, ErrEmptyKeySet
		}

		snapshot := make(map[string]SigningKey, len(keys))
		for kid, key := range keys {
			snapshot[kid] = key
		}
		c.keys.Store(&snapshot)
		c.config.Metrics.RecordKeyRefresh("success")
		c.config.Logger.Info("signing keys refreshed", slog.Int("key_count", len(snapshot)))
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *KeyCache) allowAttempt() bool {
	if c.config.MinRefreshInterval <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAttempt.IsZero() || c.now().Sub(c.lastAttempt) >= c.config.MinRefreshInterval
}

func (c *KeyCache) markAttempt() {
	c.mu.Lock()
	c.lastAttempt = c.now()
	c.mu.Unlock()
}
