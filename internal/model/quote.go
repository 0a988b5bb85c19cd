package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote は正規化済みの最新株価を表す。
// リクエストごとに生成し、キャッシュしない。
type Quote struct {
	Symbol string
	// Price は小数点以下2桁に丸めた価格。
	Price decimal.Decimal
	AsOf  time.Time
	// ChangePercent は前日終値からの変化率（%）。前日終値が無い場合はnil。
	ChangePercent *decimal.Decimal
	// Source は取得元プロバイダ名。
	Source string
}

// HistoryPoint は日次終値の1点を表す。
type HistoryPoint struct {
	// Date は取引所ローカルの暦日（YYYY-MM-DD）。
	Date  string
	Close decimal.Decimal
}

// PortfolioEntry はユーザーのウォッチリストに登録されたシンボルを表す。
// (Email, Symbol) の組は一意。
type PortfolioEntry struct {
	ID        string
	Email     string
	Symbol    string
	CreatedAt time.Time
}
