package quote

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/stockfolio/internal/model"
)

// pricePlaces は価格と変化率の小数点以下桁数。
const pricePlaces = 2

// minorUnitCurrencies は補助通貨単位で価格を返す通貨コード（1/100単位）。
var minorUnitCurrencies = map[string]bool{
	"GBp": true,
	"GBX": true,
	"ZAc": true,
	"ILA": true,
}

var hundred = decimal.NewFromInt(100)

// Normalize はRawQuoteをQuoteに変換する。
//
// 丸めは上流の10進表記に対してRound(2)（0.5は0から遠い側へ）で行うため、
// 123.455 はどのプロバイダ経由でも 123.46 になる。
// 前日終値が無い、またはゼロの場合、ChangePercentはnilとなる。
func Normalize(raw RawQuote, source string) (model.Quote, error) {
	last, err := parseAmount(raw.Last, raw.Currency)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%s: last price: %w", raw.Symbol, err)
	}
	if !last.IsPositive() {
		return model.Quote{}, fmt.Errorf("%s: non-positive price %s: %w", raw.Symbol, raw.Last, ErrMalformedResponse)
	}

	q := model.Quote{
		Symbol: raw.Symbol,
		Price:  last.Round(pricePlaces),
		AsOf:   raw.AsOf,
		Source: source,
	}

	if isPresent(raw.PreviousClose) {
		prior, err := parseAmount(raw.PreviousClose, raw.Currency)
		if err != nil {
			return model.Quote{}, fmt.Errorf("%s: previous close: %w", raw.Symbol, err)
		}
		if !prior.IsZero() {
			change := last.Sub(prior).Mul(hundred).Div(prior).Round(pricePlaces)
			q.ChangePercent = &change
		}
	}

	return q, nil
}

// NormalizeHistory はRawHistoryを日付昇順・日付重複なしのHistoryPoint列に変換する。
// 欠損した足は捨て、同じ暦日の足が複数ある場合は後に現れたものを採用する。
func NormalizeHistory(raw RawHistory) ([]model.HistoryPoint, error) {
	byDate := make(map[string]decimal.Decimal, len(raw.Bars))
	for _, bar := range raw.Bars {
		if !isPresent(bar.Close) {
			continue
		}
		closing, err := parseAmount(bar.Close, raw.Currency)
		if err != nil {
			return nil, fmt.Errorf("%s: bar %s: %w", raw.Symbol, bar.Time.Format(time.DateOnly), err)
		}
		byDate[bar.Time.Format(time.DateOnly)] = closing.Round(pricePlaces)
	}

	points := make([]model.HistoryPoint, 0, len(byDate))
	for date, closing := range byDate {
		points = append(points, model.HistoryPoint{Date: date, Close: closing})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

func parseAmount(text, currency string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %q: %w", text, ErrMalformedResponse)
	}
	if minorUnitCurrencies[currency] {
		d = d.Shift(-2)
	}
	return d, nil
}

func isPresent(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && !strings.EqualFold(t, "null")
}
