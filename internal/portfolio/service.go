// Package portfolio はユーザーごとのウォッチリスト操作を提供する。
package portfolio

import (
	"context"
	"fmt"

	"github.com/hitoshi/stockfolio/internal/repository"
)

// Service はウォッチリストのユースケースを実装する。
type Service struct {
	repo repository.PortfolioRepository
}

// NewService は新しいServiceを生成する。
func NewService(repo repository.PortfolioRepository) *Service {
	return &Service{repo: repo}
}

// Add はシンボルを正規化してウォッチリストに追加し、正規化後のシンボルを返す。
// 既に登録済みの場合も成功とする。
func (s *Service) Add(ctx context.Context, email, rawSymbol string) (string, error) {
	symbol, err := ParseSymbol(rawSymbol)
	if err != nil {
		return "", err
	}
	if err := s.repo.Put(ctx, email, symbol); err != nil {
		return "", fmt.Errorf("failed to add %s to portfolio: %w", symbol, err)
	}
	return symbol, nil
}

// List はウォッチリストのシンボルを昇順で返す。
func (s *Service) List(ctx context.Context, email string) ([]string, error) {
	symbols, err := s.repo.ListSymbols(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio: %w", err)
	}
	if symbols == nil {
		symbols = []string{}
	}
	return symbols, nil
}
