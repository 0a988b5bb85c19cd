package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hitoshi/stockfolio/internal/model"
)

// defaultFanOut はAdapterが同時実行数を公表していない場合の既定値。
const defaultFanOut = 4

// MetricsRecorder は上流呼び出しのメトリクス記録に必要なインターフェース。
type MetricsRecorder interface {
	RecordUpstreamCall(provider, outcome string)
	RecordUpstreamRetry(provider string)
	RecordUpstreamLatency(provider string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordUpstreamCall(string, string)           {}
func (noopRecorder) RecordUpstreamRetry(string)                  {}
func (noopRecorder) RecordUpstreamLatency(string, time.Duration) {}

// Config はOrchestratorの設定を保持する。
type Config struct {
	Retry RetryPolicy
	// CallTimeout は1回の上流呼び出しのタイムアウト。
	CallTimeout time.Duration
	// FanOut は同時実行数。0以下の場合はAdapter.Limits().MaxConcurrencyを使う。
	FanOut  int
	Metrics MetricsRecorder
	Logger  *slog.Logger
	Sleep   Sleeper
	Now     func() time.Time
}

// Orchestrator は1つのAdapterに対する呼び出しを調停する。
//
// リトライするのはErrRateLimitedのみで、それ以外の失敗は即座にそのシンボルの失敗とする。
// 呼び出し元のctxが期限切れまたはキャンセルされた場合、部分結果は返さず
// REQUEST_TIMEOUTのAPIErrorを返す。
type Orchestrator struct {
	adapter Adapter
	config  Config
	limiter *rate.Limiter
	fanOut  int
}

// NewOrchestrator は新しいOrchestratorを生成する。
func NewOrchestrator(adapter Adapter, config Config) *Orchestrator {
	if config.Retry.BaseDelay <= 0 {
		config.Retry.BaseDelay = defaultBaseDelay
	}
	if config.Retry.MaxRetries < 0 {
		config.Retry.MaxRetries = 0
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 5 * time.Second
	}
	if config.Metrics == nil {
		config.Metrics = noopRecorder{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	limits := adapter.Limits()
	limit := rate.Inf
	burst := limits.Burst
	if limits.RequestsPerSecond > 0 {
		limit = rate.Limit(limits.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	fanOut := config.FanOut
	if fanOut <= 0 {
		fanOut = limits.MaxConcurrency
	}
	if fanOut <= 0 {
		fanOut = defaultFanOut
	}

	return &Orchestrator{
		adapter: adapter,
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		fanOut:  fanOut,
	}
}

// Provider は利用中のAdapterの名前を返す。
func (o *Orchestrator) Provider() string {
	return o.adapter.Name()
}

// FanOut は実際に使われる同時実行数を返す。
func (o *Orchestrator) FanOut() int {
	return o.fanOut
}

// result はシンボル単位の取得結果。
type result struct {
	symbol string
	quote  model.Quote
	err    error
}

// FetchLatest は複数シンボルの最新価格を並行して取得する。
//
// 1シンボルの失敗は他に影響せず、戻り値には成功したシンボルのみが含まれる。
// 1件も成功しなかった場合はNO_DATAのAPIErrorを返す。
func (o *Orchestrator) FetchLatest(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		return nil, model.NewNoDataError()
	}

	var results []result
	if batch, ok := o.adapter.(BatchAdapter); ok {
		results = o.fetchBatched(ctx, batch, symbols)
	} else {
		results = o.fetchEach(ctx, symbols)
	}

	if ctx.Err() != nil {
		o.config.Logger.Warn("latest quote fetch abandoned",
			slog.String("provider", o.adapter.Name()),
			slog.Int("symbols", len(symbols)),
			slog.String("error", ctx.Err().Error()),
		)
		return nil, model.NewRequestTimeoutError()
	}

	quotes := make(map[string]model.Quote, len(results))
	for _, r := range results {
		if r.err != nil {
			o.config.Logger.Warn("quote fetch failed",
				slog.String("provider", o.adapter.Name()),
				slog.String("symbol", r.symbol),
				slog.String("error", r.err.Error()),
			)
			continue
		}
		quotes[r.symbol] = r.quote
	}

	if len(quotes) == 0 {
		return nil, model.NewNoDataError()
	}
	return quotes, nil
}

// FetchQuote は1シンボルの最新価格を取得する。
func (o *Orchestrator) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	r := o.fetchOne(ctx, symbol)
	if r.err != nil {
		return model.Quote{}, o.toAPIError(ctx, symbol, "quote", r.err)
	}
	return r.quote, nil
}

// FetchHistory はwindowで指定した期間の日次終値を日付昇順で返す。
func (o *Orchestrator) FetchHistory(ctx context.Context, symbol string, window time.Duration) ([]model.HistoryPoint, error) {
	now := o.config.Now()
	hr := HistoryRange{From: now.Add(-window), To: now}

	var raw RawHistory
	err := o.call(ctx, func(callCtx context.Context) error {
		var err error
		raw, err = o.adapter.FetchHistory(callCtx, symbol, hr)
		return err
	})
	if err != nil {
		return nil, o.toAPIError(ctx, symbol, "history", err)
	}

	if raw.Symbol == "" {
		raw.Symbol = symbol
	}
	points, err := NormalizeHistory(raw)
	if err != nil {
		return nil, o.toAPIError(ctx, symbol, "history", err)
	}
	if len(points) == 0 {
		return nil, model.NewSymbolNotFoundError(symbol)
	}
	return points, nil
}

func (o *Orchestrator) fetchEach(ctx context.Context, symbols []string) []result {
	sem := semaphore.NewWeighted(int64(o.fanOut))
	results := make([]result, len(symbols))

	var wg sync.WaitGroup
	for i, symbol := range symbols {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = result{symbol: symbol, err: err}
			continue
		}
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = o.fetchOne(ctx, symbol)
		}(i, symbol)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) fetchOne(ctx context.Context, symbol string) result {
	var raw RawQuote
	err := o.call(ctx, func(callCtx context.Context) error {
		var err error
		raw, err = o.adapter.FetchLatest(callCtx, symbol)
		return err
	})
	if err != nil {
		return result{symbol: symbol, err: err}
	}
	return o.normalize(symbol, raw)
}

// fetchBatched はBatchAdapterに対してMaxBatchSizeごとに分割して取得する。
func (o *Orchestrator) fetchBatched(ctx context.Context, batch BatchAdapter, symbols []string) []result {
	size := batch.MaxBatchSize()
	if size <= 0 {
		size = len(symbols)
	}

	chunks := make([][]string, 0, (len(symbols)+size-1)/size)
	for start := 0; start < len(symbols); start += size {
		end := min(start+size, len(symbols))
		chunks = append(chunks, symbols[start:end])
	}

	sem := semaphore.NewWeighted(int64(o.fanOut))
	var (
		mu      sync.Mutex
		results = make([]result, 0, len(symbols))
		wg      sync.WaitGroup
	)
	for _, chunk := range chunks {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(chunk []string) {
			defer wg.Done()
			defer sem.Release(1)

			chunkResults := o.fetchChunk(ctx, batch, chunk)
			mu.Lock()
			results = append(results, chunkResults...)
			mu.Unlock()
		}(chunk)
	}
	wg.Wait()
	return results
}

// fetchChunk は1チャンクを取得する。
// 本文全体のレート制限ではチャンク全体を、シンボル単位のレート制限ではそのシンボルだけを
// 再取得する。どちらも同じリトライ回数とバックオフを共有し、成功したシンボルは再取得しない。
func (o *Orchestrator) fetchChunk(ctx context.Context, batch BatchAdapter, chunk []string) []result {
	results := make([]result, 0, len(chunk))
	pending := chunk

	for retry := 0; ; retry++ {
		var got map[string]BatchResult
		err := o.attempt(ctx, func(callCtx context.Context) error {
			var err error
			got, err = batch.FetchLatestBatch(callCtx, pending)
			return err
		})

		var (
			limited []string
			cause   error
		)
		switch {
		case errors.Is(err, ErrRateLimited):
			limited, cause = pending, err
		case err != nil:
			for _, symbol := range pending {
				results = append(results, result{symbol: symbol, err: err})
			}
			return results
		default:
			for _, symbol := range pending {
				switch br, ok := got[symbol]; {
				case !ok:
					results = append(results, result{symbol: symbol, err: fmt.Errorf("%s missing from batch: %w", symbol, ErrSymbolNotFound)})
				case errors.Is(br.Err, ErrRateLimited):
					limited, cause = append(limited, symbol), br.Err
				case br.Err != nil:
					results = append(results, result{symbol: symbol, err: br.Err})
				default:
					results = append(results, o.normalize(symbol, br.Quote))
				}
			}
		}

		if len(limited) == 0 {
			return results
		}
		if err := o.backoff(ctx, retry, cause); err != nil {
			for _, symbol := range limited {
				results = append(results, result{symbol: symbol, err: err})
			}
			return results
		}
		pending = limited
	}
}

func (o *Orchestrator) normalize(symbol string, raw RawQuote) result {
	if raw.Symbol == "" {
		raw.Symbol = symbol
	}
	q, err := Normalize(raw, o.adapter.Name())
	if err != nil {
		return result{symbol: symbol, err: err}
	}
	q.Symbol = symbol
	if q.AsOf.IsZero() {
		q.AsOf = o.config.Now()
	}
	return result{symbol: symbol, quote: q}
}

// call は1つの取得単位をレート制限・タイムアウト・リトライ付きで実行する。
func (o *Orchestrator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	for retry := 0; ; retry++ {
		err := o.attempt(ctx, fn)
		if err == nil || !errors.Is(err, ErrRateLimited) {
			return err
		}
		if err := o.backoff(ctx, retry, err); err != nil {
			return err
		}
	}
}

// attempt は上流を1回だけ呼び出す。ctxが終了した場合はctx.Err()を返す。
func (o *Orchestrator) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	provider := o.adapter.Name()

	if err := o.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rate limiter wait: %w", context.DeadlineExceeded)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	start := o.config.Now()
	err := fn(callCtx)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()
	o.config.Metrics.RecordUpstreamLatency(provider, o.config.Now().Sub(start))

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && timedOut {
		err = fmt.Errorf("%w after %s: %v", ErrCallTimeout, o.config.CallTimeout, err)
	}
	o.config.Metrics.RecordUpstreamCall(provider, outcomeOf(err))
	return err
}

// backoff はretry回目のレート制限の後で待機する。
// リトライ上限に達している場合は待たずにErrRetriesExhaustedを返す。
func (o *Orchestrator) backoff(ctx context.Context, retry int, cause error) error {
	if retry >= o.config.Retry.MaxRetries {
		return fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, retry, cause)
	}

	delay := o.config.Retry.Backoff(retry)
	o.config.Metrics.RecordUpstreamRetry(o.adapter.Name())
	o.config.Logger.Debug("upstream rate limited, backing off",
		slog.String("provider", o.adapter.Name()),
		slog.Int("retry", retry+1),
		slog.Duration("delay", delay),
	)
	return o.config.Sleep(ctx, delay)
}

// toAPIError は取得失敗をクライアント向けのAPIErrorに変換する。詳細はログにのみ残す。
func (o *Orchestrator) toAPIError(ctx context.Context, symbol, op string, err error) error {
	attrs := []any{
		slog.String("provider", o.adapter.Name()),
		slog.String("symbol", symbol),
		slog.String("op", op),
		slog.String("error", err.Error()),
	}

	switch {
	case ctx.Err() != nil:
		o.config.Logger.Warn("quote request abandoned", attrs...)
		return model.NewRequestTimeoutError()
	case errors.Is(err, ErrSymbolNotFound):
		o.config.Logger.Info("symbol not found upstream", attrs...)
		return model.NewSymbolNotFoundError(symbol)
	default:
		o.config.Logger.Error("quote provider failure", attrs...)
		return model.NewProviderUnavailableError()
	}
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
