// Package yahoo はYahoo Financeのchart APIに対するアダプタを提供する。
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/stockfolio/internal/provider"
	"github.com/hitoshi/stockfolio/internal/quote"
)

// Name はプロバイダ名。
const Name = "yahoo"

// DefaultBaseURL は既定のエンドポイント。
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// chartResponse は /v8/finance/chart のレスポンス。
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol             string       `json:"symbol"`
		Currency           string       `json:"currency"`
		RegularMarketPrice *json.Number `json:"regularMarketPrice"`
		PreviousClose      *json.Number `json:"previousClose"`
		ChartPreviousClose *json.Number `json:"chartPreviousClose"`
		RegularMarketTime  int64        `json:"regularMarketTime"`
		GMTOffset          int          `json:"gmtoffset"`
		ExchangeTimezone   string       `json:"exchangeTimezoneName"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*json.Number `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Adapter はYahoo Financeのシンボル単位REST APIを呼び出す。
type Adapter struct {
	baseURL string
	client  *provider.Client
}

// New は新しいAdapterを生成する。
func New(baseURL string, client *provider.Client) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Name はプロバイダ名を返す。
func (a *Adapter) Name() string { return Name }

// Limits は非公式APIとして控えめな呼び出し量を返す。
func (a *Adapter) Limits() quote.Limits {
	return quote.Limits{RequestsPerSecond: 5, Burst: 5, MaxConcurrency: 4}
}

// FetchLatest は最新価格と前日終値を取得する。
func (a *Adapter) FetchLatest(ctx context.Context, symbol string) (quote.RawQuote, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", "1d")

	res, err := a.chart(ctx, symbol, q)
	if err != nil {
		return quote.RawQuote{}, err
	}
	if res.Meta.RegularMarketPrice == nil {
		return quote.RawQuote{}, fmt.Errorf("%s: regularMarketPrice missing: %w", symbol, quote.ErrMalformedResponse)
	}

	raw := quote.RawQuote{
		Symbol:   symbol,
		Last:     res.Meta.RegularMarketPrice.String(),
		Currency: res.Meta.Currency,
	}
	switch {
	case res.Meta.PreviousClose != nil:
		raw.PreviousClose = res.Meta.PreviousClose.String()
	case res.Meta.ChartPreviousClose != nil:
		raw.PreviousClose = res.Meta.ChartPreviousClose.String()
	}
	if res.Meta.RegularMarketTime > 0 {
		raw.AsOf = time.Unix(res.Meta.RegularMarketTime, 0).UTC()
	}
	return raw, nil
}

// FetchHistory は日足の終値を取得する。足の時刻は取引所の時差で表す。
func (a *Adapter) FetchHistory(ctx context.Context, symbol string, r quote.HistoryRange) (quote.RawHistory, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", strconv.FormatInt(r.From.Unix(), 10))
	q.Set("period2", strconv.FormatInt(r.To.Unix(), 10))

	res, err := a.chart(ctx, symbol, q)
	if err != nil {
		return quote.RawHistory{}, err
	}

	var closes []*json.Number
	if len(res.Indicators.Quote) > 0 {
		closes = res.Indicators.Quote[0].Close
	}
	if len(closes) != 0 && len(closes) != len(res.Timestamp) {
		return quote.RawHistory{}, fmt.Errorf("%s: %d timestamps but %d closes: %w",
			symbol, len(res.Timestamp), len(closes), quote.ErrMalformedResponse)
	}

	loc := time.FixedZone(res.Meta.ExchangeTimezone, res.Meta.GMTOffset)
	hist := quote.RawHistory{Symbol: symbol, Currency: res.Meta.Currency}
	for i, ts := range res.Timestamp {
		bar := quote.RawBar{Time: time.Unix(ts, 0).In(loc)}
		if i < len(closes) && closes[i] != nil {
			bar.Close = closes[i].String()
		}
		hist.Bars = append(hist.Bars, bar)
	}
	return hist, nil
}

func (a *Adapter) chart(ctx context.Context, symbol string, q url.Values) (*chartResult, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", a.baseURL, url.PathEscape(symbol), q.Encode())

	var body chartResponse
	if err := a.client.GetJSON(ctx, endpoint, &body); err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	if body.Chart.Error != nil {
		if strings.EqualFold(body.Chart.Error.Code, "Not Found") {
			return nil, fmt.Errorf("%s: %s: %w", symbol, body.Chart.Error.Description, quote.ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("%s: %s %s: %w", symbol, body.Chart.Error.Code, body.Chart.Error.Description, quote.ErrMalformedResponse)
	}
	if len(body.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: empty chart result: %w", symbol, quote.ErrSymbolNotFound)
	}
	return &body.Chart.Result[0], nil
}
