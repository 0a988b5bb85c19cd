// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
)

// PortfolioRepository はユーザーごとのウォッチリストの永続化インターフェース。
// ユーザーはトークンのemailクレームで識別する。
type PortfolioRepository interface {
	// Put はシンボルを追加する。登録済みの場合は何もせず成功扱いとする。
	Put(ctx context.Context, email, symbol string) error

	// ListSymbols は指定ユーザーの全シンボルを昇順で返す。未登録の場合は空スライスを返す。
	ListSymbols(ctx context.Context, email string) ([]string, error)
}
