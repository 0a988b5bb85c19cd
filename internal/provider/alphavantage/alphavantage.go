// Package alphavantage はAlpha VantageのAPIに対するアダプタを提供する。
//
// Alpha Vantageはレート制限を200レスポンスの本文（"Note" / "Information"）で通知する。
// "Information"はAPIキーの不備などにも使われるため、文言でレート制限かを判定する。
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/stockfolio/internal/provider"
	"github.com/hitoshi/stockfolio/internal/quote"
)

// Name はプロバイダ名。
const Name = "alphavantage"

// DefaultBaseURL は既定のエンドポイント。
const DefaultBaseURL = "https://www.alphavantage.co"

// compactDays は outputsize=compact で返る取引日数。
const compactDays = 100

// ErrRequestRejected は上流がレート制限以外の理由でリクエストを拒否したことを示す。リトライしない。
var ErrRequestRejected = errors.New("request rejected by alphavantage")

// rateLimitPhrases は"Information"のうちレート制限を表す文言。
var rateLimitPhrases = []string{
	"rate limit",
	"call frequency",
	"burst pattern",
	"per minute",
	"per second",
	"per day",
}

func isRateLimitNotice(msg string) bool {
	msg = strings.ToLower(msg)
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// envelope は全エンドポイント共通の通知フィールド。
type envelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

type globalQuoteResponse struct {
	envelope
	GlobalQuote map[string]string `json:"Global Quote"`
}

type dailyResponse struct {
	envelope
	Series map[string]map[string]string `json:"Time Series (Daily)"`
}

// Adapter はAlpha Vantageのシンボル単位REST APIを呼び出す。
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

// Limits は無料プランに合わせた呼び出し量を返す。
func (a *Adapter) Limits() quote.Limits {
	return quote.Limits{RequestsPerSecond: 1, Burst: 5, MaxConcurrency: 2}
}

// FetchLatest はGLOBAL_QUOTEで最新価格を取得する。
func (a *Adapter) FetchLatest(ctx context.Context, symbol string) (quote.RawQuote, error) {
	var body globalQuoteResponse
	if err := a.query(ctx, symbol, url.Values{"function": {"GLOBAL_QUOTE"}}, &body); err != nil {
		return quote.RawQuote{}, err
	}
	if err := body.check(symbol); err != nil {
		return quote.RawQuote{}, err
	}
	// 未知のシンボルには空の "Global Quote" が返る
	if len(body.GlobalQuote) == 0 {
		return quote.RawQuote{}, fmt.Errorf("%s: empty Global Quote: %w", symbol, quote.ErrSymbolNotFound)
	}

	price := body.GlobalQuote["05. price"]
	if price == "" {
		return quote.RawQuote{}, fmt.Errorf("%s: price field missing: %w", symbol, quote.ErrMalformedResponse)
	}

	raw := quote.RawQuote{
		Symbol:        symbol,
		Last:          price,
		PreviousClose: body.GlobalQuote["08. previous close"],
	}
	if day := body.GlobalQuote["07. latest trading day"]; day != "" {
		if t, err := time.Parse(time.DateOnly, day); err == nil {
			raw.AsOf = t
		}
	}
	return raw, nil
}

// FetchHistory はTIME_SERIES_DAILYで日足の終値を取得し、期間内の足のみを返す。
func (a *Adapter) FetchHistory(ctx context.Context, symbol string, r quote.HistoryRange) (quote.RawHistory, error) {
	outputSize := "compact"
	// 取引日は暦日のおよそ7割
	if r.To.Sub(r.From) > compactDays*24*time.Hour*7/5 {
		outputSize = "full"
	}

	var body dailyResponse
	params := url.Values{"function": {"TIME_SERIES_DAILY"}, "outputsize": {outputSize}}
	if err := a.query(ctx, symbol, params, &body); err != nil {
		return quote.RawHistory{}, err
	}
	if err := body.check(symbol); err != nil {
		return quote.RawHistory{}, err
	}
	if body.Series == nil {
		return quote.RawHistory{}, fmt.Errorf("%s: daily series missing: %w", symbol, quote.ErrMalformedResponse)
	}

	from := r.From.Format(time.DateOnly)
	to := r.To.Format(time.DateOnly)
	hist := quote.RawHistory{Symbol: symbol}
	for day, bar := range body.Series {
		if day < from || day > to {
			continue
		}
		t, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return quote.RawHistory{}, fmt.Errorf("%s: bad date %q: %w", symbol, day, quote.ErrMalformedResponse)
		}
		hist.Bars = append(hist.Bars, quote.RawBar{Time: t, Close: bar["4. close"]})
	}
	return hist, nil
}

func (a *Adapter) query(ctx context.Context, symbol string, params url.Values, out any) error {
	params.Set("symbol", symbol)
	params.Set("apikey", a.apiKey)
	endpoint := fmt.Sprintf("%s/query?%s", a.baseURL, params.Encode())
	if err := a.client.GetJSON(ctx, endpoint, out); err != nil {
		return fmt.Errorf("%s: %w", symbol, err)
	}
	return nil
}

// check は本文中の通知を分類する。
func (e envelope) check(symbol string) error {
	switch {
	case e.Note != "":
		return fmt.Errorf("%s: %s: %w", symbol, e.Note, quote.ErrRateLimited)
	case e.Information != "" && isRateLimitNotice(e.Information):
		return fmt.Errorf("%s: %s: %w", symbol, e.Information, quote.ErrRateLimited)
	case e.Information != "":
		// APIキーの不備やプレミアム専用エンドポイントなど、再試行しても変わらないもの
		return fmt.Errorf("%s: %s: %w", symbol, e.Information, ErrRequestRejected)
	case e.ErrorMessage != "":
		return fmt.Errorf("%s: %s: %w", symbol, e.ErrorMessage, quote.ErrSymbolNotFound)
	}
	return nil
}
