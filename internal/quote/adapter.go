// Package quote は相場データプロバイダの呼び出しと正規化を提供する。
//
// プロバイダ固有の取得処理はAdapterとして実装し、
// Orchestratorがレート制限・リトライ・並行数制御・期限管理を一元的に担う。
package quote

import (
	"context"
	"time"
)

// RawQuote はプロバイダから受け取った未加工の最新価格。
// 数値は上流が送ってきた10進表記のまま保持し、丸めはNormalizeで行う。
type RawQuote struct {
	Symbol string
	// Last は最新価格。
	Last string
	// PreviousClose は前日終値。取得できない場合は空文字列。
	PreviousClose string
	// Currency はISO 4217コード。GBp等の補助通貨単位もそのまま保持する。
	Currency string
	AsOf     time.Time
}

// RawBar は日次の1本分。Closeが空の場合は欠損として扱う。
// Timeは取引所ローカルの時刻帯で保持する。
type RawBar struct {
	Time  time.Time
	Close string
}

// RawHistory はプロバイダから受け取った未加工の日次履歴。順序は問わない。
type RawHistory struct {
	Symbol   string
	Currency string
	Bars     []RawBar
}

// HistoryRange は履歴取得の期間。
type HistoryRange struct {
	From time.Time
	To   time.Time
}

// Limits はプロバイダが公表する安全な呼び出し量。
type Limits struct {
	// RequestsPerSecond は秒間リクエスト数の上限。0以下の場合は制限しない。
	RequestsPerSecond float64
	Burst             int
	// MaxConcurrency は同時実行数の既定値。
	MaxConcurrency int
}

// Adapter は1つの上流プロバイダとのやり取りを表す。
//
// 実装は次のエラーで結果を分類すること:
//   - レート制限: ErrRateLimited（200レスポンス本文中の通知を含む）
//   - 未知のシンボル: ErrSymbolNotFound
//   - 解釈できない本文: ErrMalformedResponse
//
// リトライは行わない。
type Adapter interface {
	Name() string
	Limits() Limits
	FetchLatest(ctx context.Context, symbol string) (RawQuote, error)
	FetchHistory(ctx context.Context, symbol string, r HistoryRange) (RawHistory, error)
}

// BatchResult は一括取得における1シンボル分の結果。
type BatchResult struct {
	Quote RawQuote
	Err   error
}

// BatchAdapter は複数シンボルを1リクエストで取得できるプロバイダ。
// 本文全体に対するレート制限はerrorとして、シンボル単位の失敗はBatchResult.Errとして返す。
// BatchResult.ErrがErrRateLimitedのシンボルは、それらだけを集めて再取得される。
type BatchAdapter interface {
	Adapter
	MaxBatchSize() int
	FetchLatestBatch(ctx context.Context, symbols []string) (map[string]BatchResult, error)
}
