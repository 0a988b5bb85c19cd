// Package keyrefresh は署名鍵セットの定期的な再取得を提供する。
// 未知のkidによる再取得とは独立に、ローテーション後の鍵を先回りして取り込む。
package keyrefresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/stockfolio/internal/auth"
)

// Refresher は鍵セットの再取得インターフェース。auth.KeyCacheが実装する。
// Reloadは未知のkidによる再取得の最小間隔に影響しないこと。
type Refresher interface {
	Reload(ctx context.Context) error
}

// Scheduler は一定間隔でRefresherを呼び出す。
type Scheduler struct {
	refresher Refresher
	logger    *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(refresher Refresher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{refresher: refresher, logger: logger}
}

// Start はintervalごとに再取得を行う。コンテキストがキャンセルされるまで実行を継続する。
// 起動時の取得は呼び出し側がKeyCache.Loadで済ませている前提のため、初回は待ってから実行する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("key refresh scheduler started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("key refresh scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は再取得を1回実行する。失敗しても保持中の鍵セットは維持される。
func (s *Scheduler) RunOnce(ctx context.Context) {
	err := s.refresher.Reload(ctx)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrRefreshThrottled):
		// 実行中の未知kidによる再取得に相乗りし、その取得が間隔制限で見送られた場合
		s.logger.Debug("scheduled key refresh joined a throttled refresh")
	case ctx.Err() != nil:
	default:
		s.logger.Warn("scheduled key refresh failed", slog.String("error", err.Error()))
	}
}
