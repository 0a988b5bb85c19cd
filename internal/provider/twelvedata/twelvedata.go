// Package twelvedata はTwelve DataのAPIに対するアダプタを提供する。
//
// /quote は複数シンボルをカンマ区切りで受け付け、シンボル単位のエラーを本文に含めて返す。
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/stockfolio/internal/provider"
	"github.com/hitoshi/stockfolio/internal/quote"
)

// Name はプロバイダ名。
const Name = "twelvedata"

// DefaultBaseURL は既定のエンドポイント。
const DefaultBaseURL = "https://api.twelvedata.com"

// maxBatchSize は1リクエストに含めるシンボル数の上限。
const maxBatchSize = 50

// statusBody はエラー応答の共通形。
type statusBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (s statusBody) err(subject string) error {
	if s.Status != "error" {
		return nil
	}
	switch s.Code {
	case 429:
		return fmt.Errorf("%s: %s: %w", subject, s.Message, quote.ErrRateLimited)
	case 400, 404:
		return fmt.Errorf("%s: %s: %w", subject, s.Message, quote.ErrSymbolNotFound)
	default:
		return &quote.StatusError{Provider: Name, StatusCode: s.Code}
	}
}

type quoteBody struct {
	statusBody
	Symbol        string       `json:"symbol"`
	Currency      string       `json:"currency"`
	Timestamp     int64        `json:"timestamp"`
	Close         *json.Number `json:"close"`
	PreviousClose *json.Number `json:"previous_close"`
}

type timeSeriesBody struct {
	statusBody
	Meta struct {
		Symbol           string `json:"symbol"`
		Currency         string `json:"currency"`
		ExchangeTimezone string `json:"exchange_timezone"`
	} `json:"meta"`
	Values []struct {
		Datetime string `json:"datetime"`
		Close    string `json:"close"`
	} `json:"values"`
}

// Adapter はTwelve Dataの一括取得APIを呼び出す。
type Adapter struct {
	baseURL string
	apiKey  string
	client  *provider.Client
}

// New は新しいAdapterを生成する。
func New(baseURL, apiKey string, client *provider.Client) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

// Name はプロバイダ名を返す。
func (a *Adapter) Name() string { return Name }

// Limits は無料プラン（8リクエスト/分）に合わせた呼び出し量を返す。
func (a *Adapter) Limits() quote.Limits {
	return quote.Limits{RequestsPerSecond: 8.0 / 60.0, Burst: 8, MaxConcurrency: 2}
}

// MaxBatchSize は1リクエストあたりのシンボル数上限を返す。
func (a *Adapter) MaxBatchSize() int { return maxBatchSize }

// FetchLatest は1シンボルの最新価格を取得する。
func (a *Adapter) FetchLatest(ctx context.Context, symbol string) (quote.RawQuote, error) {
	results, err := a.FetchLatestBatch(ctx, []string{symbol})
	if err != nil {
		return quote.RawQuote{}, err
	}
	r, ok := results[symbol]
	if !ok {
		return quote.RawQuote{}, fmt.Errorf("%s: missing from response: %w", symbol, quote.ErrSymbolNotFound)
	}
	return r.Quote, r.Err
}

// FetchLatestBatch は複数シンボルの最新価格を1リクエストで取得する。
// 1シンボルの場合、上流は入れ子にせず単一のオブジェクトを返す。
func (a *Adapter) FetchLatestBatch(ctx context.Context, symbols []string) (map[string]quote.BatchResult, error) {
	params := url.Values{}
	params.Set("symbol", strings.Join(symbols, ","))
	params.Set("apikey", a.apiKey)
	endpoint := fmt.Sprintf("%s/quote?%s", a.baseURL, params.Encode())

	var body map[string]json.RawMessage
	if err := a.client.GetJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	// 全体エラー（認証失敗・クレジット枯渇など）
	if _, ok := body["status"]; ok {
		var top statusBody
		if err := remarshal(body, &top); err != nil {
			return nil, err
		}
		if err := top.err(strings.Join(symbols, ",")); err != nil {
			return nil, err
		}
	}

	results := make(map[string]quote.BatchResult, len(symbols))
	if len(symbols) == 1 {
		var qb quoteBody
		if err := remarshal(body, &qb); err != nil {
			return nil, err
		}
		results[symbols[0]] = toResult(symbols[0], qb)
		return results, nil
	}

	for _, symbol := range symbols {
		raw, ok := body[symbol]
		if !ok {
			continue
		}
		var qb quoteBody
		if err := json.Unmarshal(raw, &qb); err != nil {
			results[symbol] = quote.BatchResult{Err: fmt.Errorf("%s: %v: %w", symbol, err, quote.ErrMalformedResponse)}
			continue
		}
		// シンボル単位のレート制限もBatchResult.Errに入れ、他のシンボルの結果は残す
		results[symbol] = toResult(symbol, qb)
	}
	return results, nil
}

// FetchHistory は/time_seriesで日足の終値を取得する。
func (a *Adapter) FetchHistory(ctx context.Context, symbol string, r quote.HistoryRange) (quote.RawHistory, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1day")
	params.Set("start_date", r.From.Format(time.DateOnly))
	params.Set("end_date", r.To.Format(time.DateOnly))
	params.Set("apikey", a.apiKey)
	endpoint := fmt.Sprintf("%s/time_series?%s", a.baseURL, params.Encode())

	var body timeSeriesBody
	if err := a.client.GetJSON(ctx, endpoint, &body); err != nil {
		return quote.RawHistory{}, fmt.Errorf("%s: %w", symbol, err)
	}
	if err := body.err(symbol); err != nil {
		return quote.RawHistory{}, err
	}

	loc := time.UTC
	if body.Meta.ExchangeTimezone != "" {
		if l, err := time.LoadLocation(body.Meta.ExchangeTimezone); err == nil {
			loc = l
		}
	}

	hist := quote.RawHistory{Symbol: symbol, Currency: body.Meta.Currency}
	for _, v := range body.Values {
		// 日足のdatetimeは日付のみ
		t, err := time.ParseInLocation(time.DateOnly, v.Datetime, loc)
		if err != nil {
			return quote.RawHistory{}, fmt.Errorf("%s: bad datetime %q: %w", symbol, v.Datetime, quote.ErrMalformedResponse)
		}
		hist.Bars = append(hist.Bars, quote.RawBar{Time: t, Close: v.Close})
	}
	return hist, nil
}

func toResult(symbol string, qb quoteBody) quote.BatchResult {
	if err := qb.err(symbol); err != nil {
		return quote.BatchResult{Err: err}
	}
	if qb.Close == nil {
		return quote.BatchResult{Err: fmt.Errorf("%s: close missing: %w", symbol, quote.ErrMalformedResponse)}
	}
	raw := quote.RawQuote{Symbol: symbol, Last: qb.Close.String(), Currency: qb.Currency}
	if qb.PreviousClose != nil {
		raw.PreviousClose = qb.PreviousClose.String()
	}
	if qb.Timestamp > 0 {
		raw.AsOf = time.Unix(qb.Timestamp, 0).UTC()
	}
	return quote.BatchResult{Quote: raw}
}

func remarshal(in map[string]json.RawMessage, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("re-encoding body: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding body: %v: %w", err, quote.ErrMalformedResponse)
	}
	return nil
}
