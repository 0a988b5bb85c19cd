package repository

import (
	"context"
	"sort"
	"sync"
)

// MemoryPortfolioRepo はプロセス内メモリに保持するウォッチリストリポジトリ。
// ローカル開発とテスト用で、再起動すると内容は失われる。
type MemoryPortfolioRepo struct {
	mu      sync.RWMutex
	entries map[string]map[string]struct{}
}

// NewMemoryPortfolioRepo はMemoryPortfolioRepoを生成する。
func NewMemoryPortfolioRepo() *MemoryPortfolioRepo {
	return &MemoryPortfolioRepo{entries: make(map[string]map[string]struct{})}
}

// Put はシンボルを追加する。
func (r *MemoryPortfolioRepo) Put(ctx context.Context, email, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.entries[email]
	if !ok {
		set = make(map[string]struct{})
		r.entries[email] = set
	}
	set[symbol] = struct{}{}
	return nil
}

// ListSymbols は指定ユーザーの全シンボルを昇順で返す。
func (r *MemoryPortfolioRepo) ListSymbols(ctx context.Context, email string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.entries[email]))
	for s := range r.entries[email] {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}
