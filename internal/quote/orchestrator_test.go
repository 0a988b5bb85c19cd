package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/stockfolio/internal/model"
)

// step はfakeAdapterの1回分の応答。
type step struct {
	quote RawQuote
	err   error
	// block がtrueの場合はctxが終了するまで待つ。
	block bool
}

// fakeAdapter はシンボルごとに応答列を返すAdapter。
// 応答列を使い切った後は最後の応答を返し続ける。
type fakeAdapter struct {
	mu      sync.Mutex
	steps   map[string][]step
	history map[string]RawHistory
	calls   map[string]int
	limits  Limits
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		steps:   map[string][]step{},
		history: map[string]RawHistory{},
		calls:   map[string]int{},
	}
}

func (f *fakeAdapter) Name() string   { return "fake" }
func (f *fakeAdapter) Limits() Limits { return f.limits }

func (f *fakeAdapter) script(symbol string, steps ...step) {
	f.steps[symbol] = steps
}

func (f *fakeAdapter) next(symbol string) step {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	steps := f.steps[symbol]
	if len(steps) == 0 {
		return step{err: ErrSymbolNotFound}
	}
	idx := min(f.calls[symbol]-1, len(steps)-1)
	return steps[idx]
}

func (f *fakeAdapter) Calls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeAdapter) FetchLatest(ctx context.Context, symbol string) (RawQuote, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	s := f.next(symbol)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if s.block {
		<-ctx.Done()
		return RawQuote{}, ctx.Err()
	}
	return s.quote, s.err
}

func (f *fakeAdapter) FetchHistory(ctx context.Context, symbol string, r HistoryRange) (RawHistory, error) {
	s := f.next(symbol)
	if s.err != nil {
		return RawHistory{}, s.err
	}
	return f.history[symbol], nil
}

// sleepRecorder は待機時間を記録するだけで実際には待たないSleeper。
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func okStep(last string) step {
	return step{quote: RawQuote{Last: last, PreviousClose: "100", Currency: "USD"}}
}

func apiCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("エラーは *model.APIError であるべき: %T: %v", err, err)
	}
	return apiErr.Code
}

func newTestOrchestrator(a Adapter, sleeper *sleepRecorder) *Orchestrator {
	return NewOrchestrator(a, Config{
		Retry:       DefaultRetryPolicy(),
		CallTimeout: time.Second,
		Sleep:       sleeper.Sleep,
	})
}

func TestFetchLatest_PartialFailureKeepsSuccesses(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", okStep("187.435"))
	a.script("MSFT", step{err: fmt.Errorf("decode: %w", ErrMalformedResponse)})
	a.script("TSLA", okStep("250"))
	a.script("NOPE", step{err: ErrSymbolNotFound})

	o := newTestOrchestrator(a, &sleepRecorder{})
	quotes, err := o.FetchLatest(context.Background(), []string{"AAPL", "MSFT", "TSLA", "NOPE"})
	if err != nil {
		t.Fatalf("FetchLatest() がエラーを返した: %v", err)
	}

	var got []string
	for s := range quotes {
		got = append(got, s)
	}
	sort.Strings(got)
	if fmt.Sprint(got) != "[AAPL TSLA]" {
		t.Errorf("symbols = %v, want [AAPL TSLA]", got)
	}
	if quotes["AAPL"].Price.String() != "187.44" {
		t.Errorf("AAPL price = %s, want 187.44", quotes["AAPL"].Price)
	}
	if quotes["AAPL"].Source != "fake" {
		t.Errorf("Source = %q, want fake", quotes["AAPL"].Source)
	}
	if quotes["AAPL"].AsOf.IsZero() {
		t.Error("プロバイダがAsOfを返さない場合も補完されるべき")
	}
	if a.Calls("MSFT") != 1 {
		t.Errorf("解釈できない応答はリトライされないべき: calls = %d", a.Calls("MSFT"))
	}
}

func TestFetchLatest_AllFailedIsNoData(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", step{err: ErrSymbolNotFound})
	a.script("MSFT", step{err: &StatusError{Provider: "fake", StatusCode: 500}})

	o := newTestOrchestrator(a, &sleepRecorder{})
	_, err := o.FetchLatest(context.Background(), []string{"AAPL", "MSFT"})
	if code := apiCode(t, err); code != model.ErrCodeNoData {
		t.Errorf("code = %s, want %s", code, model.ErrCodeNoData)
	}
}

func TestFetchLatest_EmptyInputIsNoData(t *testing.T) {
	o := newTestOrchestrator(newFakeAdapter(), &sleepRecorder{})
	_, err := o.FetchLatest(context.Background(), nil)
	if code := apiCode(t, err); code != model.ErrCodeNoData {
		t.Errorf("code = %s, want %s", code, model.ErrCodeNoData)
	}
}

func TestFetchLatest_DeduplicatesSymbols(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", okStep("1"))

	o := newTestOrchestrator(a, &sleepRecorder{})
	if _, err := o.FetchLatest(context.Background(), []string{"AAPL", "AAPL", "AAPL"}); err != nil {
		t.Fatalf("FetchLatest() がエラーを返した: %v", err)
	}
	if a.Calls("AAPL") != 1 {
		t.Errorf("calls = %d, want 1", a.Calls("AAPL"))
	}
}

func TestFetchQuote_RetriesRateLimitWithExponentialBackoff(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL",
		step{err: ErrRateLimited},
		step{err: ErrRateLimited},
		okStep("150"),
	)
	sleeper := &sleepRecorder{}

	o := newTestOrchestrator(a, sleeper)
	q, err := o.FetchQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchQuote() がエラーを返した: %v", err)
	}
	if q.Price.String() != "150" {
		t.Errorf("Price = %s, want 150", q.Price)
	}
	if a.Calls("AAPL") != 3 {
		t.Errorf("calls = %d, want 3", a.Calls("AAPL"))
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if fmt.Sprint(sleeper.delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", sleeper.delays, want)
	}
}

func TestFetchQuote_RateLimitExhaustionFails(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", step{err: ErrRateLimited})
	sleeper := &sleepRecorder{}

	o := newTestOrchestrator(a, sleeper)
	_, err := o.FetchQuote(context.Background(), "AAPL")
	if code := apiCode(t, err); code != model.ErrCodeProviderUnavailable {
		t.Errorf("code = %s, want %s", code, model.ErrCodeProviderUnavailable)
	}
	if a.Calls("AAPL") != 6 {
		t.Errorf("呼び出し回数 = %d, want 6（初回 + 5回のリトライ）", a.Calls("AAPL"))
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if fmt.Sprint(sleeper.delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", sleeper.delays, want)
	}
}

func TestFetchQuote_NonRetryableErrorsFailImmediately(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"not found", ErrSymbolNotFound, model.ErrCodeSymbolNotFound},
		{"server error", &StatusError{Provider: "fake", StatusCode: 503}, model.ErrCodeProviderUnavailable},
		{"malformed", ErrMalformedResponse, model.ErrCodeProviderUnavailable},
		{"network", errors.New("connection reset by peer"), model.ErrCodeProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFakeAdapter()
			a.script("AAPL", step{err: tt.err})
			sleeper := &sleepRecorder{}

			o := newTestOrchestrator(a, sleeper)
			_, err := o.FetchQuote(context.Background(), "AAPL")
			if code := apiCode(t, err); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
			if a.Calls("AAPL") != 1 {
				t.Errorf("calls = %d, want 1", a.Calls("AAPL"))
			}
			if len(sleeper.delays) != 0 {
				t.Errorf("バックオフは発生しないべき: delays = %v", sleeper.delays)
			}
		})
	}
}

func TestFetchQuote_PerCallTimeoutIsNotRetried(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", step{block: true})

	o := NewOrchestrator(a, Config{
		Retry:       DefaultRetryPolicy(),
		CallTimeout: 20 * time.Millisecond,
		Sleep:       (&sleepRecorder{}).Sleep,
	})
	_, err := o.FetchQuote(context.Background(), "AAPL")
	if code := apiCode(t, err); code != model.ErrCodeProviderUnavailable {
		t.Errorf("code = %s, want %s", code, model.ErrCodeProviderUnavailable)
	}
	if a.Calls("AAPL") != 1 {
		t.Errorf("calls = %d, want 1", a.Calls("AAPL"))
	}
}

func TestFetchLatest_OverallDeadlineDiscardsPartialResults(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", okStep("1"))
	a.script("SLOW", step{block: true})

	o := NewOrchestrator(a, Config{
		Retry:       DefaultRetryPolicy(),
		CallTimeout: time.Minute,
		Sleep:       (&sleepRecorder{}).Sleep,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	quotes, err := o.FetchLatest(ctx, []string{"AAPL", "SLOW"})
	if quotes != nil {
		t.Errorf("期限切れ時は部分的な結果を返さないべき: %v", quotes)
	}
	if code := apiCode(t, err); code != model.ErrCodeRequestTimeout {
		t.Errorf("code = %s, want %s", code, model.ErrCodeRequestTimeout)
	}
}

func TestFetchQuote_CancelledDuringBackoffIsTimeout(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", step{err: ErrRateLimited})

	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(a, Config{
		Retry: DefaultRetryPolicy(),
		Sleep: func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		},
	})

	_, err := o.FetchQuote(ctx, "AAPL")
	if code := apiCode(t, err); code != model.ErrCodeRequestTimeout {
		t.Errorf("code = %s, want %s", code, model.ErrCodeRequestTimeout)
	}
}

func TestFetchLatest_FanOutIsBounded(t *testing.T) {
	a := newFakeAdapter()
	a.delay = 10 * time.Millisecond
	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	for _, s := range symbols {
		a.script(s, okStep("1"))
	}

	o := NewOrchestrator(a, Config{FanOut: 2, Sleep: (&sleepRecorder{}).Sleep})
	quotes, err := o.FetchLatest(context.Background(), symbols)
	if err != nil {
		t.Fatalf("FetchLatest() がエラーを返した: %v", err)
	}
	if len(quotes) != len(symbols) {
		t.Errorf("len(quotes) = %d, want %d", len(quotes), len(symbols))
	}
	if got := a.maxInFlight.Load(); got > 2 {
		t.Errorf("同時実行数の最大 = %d, want <= 2", got)
	}
}

func TestNewOrchestrator_FanOutDefaultsToAdapterLimit(t *testing.T) {
	a := newFakeAdapter()
	a.limits = Limits{MaxConcurrency: 3}
	if got := NewOrchestrator(a, Config{}).FanOut(); got != 3 {
		t.Errorf("FanOut() = %d, want 3", got)
	}

	b := newFakeAdapter()
	if got := NewOrchestrator(b, Config{}).FanOut(); got != defaultFanOut {
		t.Errorf("FanOut() = %d, want %d", got, defaultFanOut)
	}

	if got := NewOrchestrator(a, Config{FanOut: 7}).FanOut(); got != 7 {
		t.Errorf("FanOut() = %d, want 7", got)
	}
}

func TestFetchHistory_ReturnsAscendingPoints(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", step{})
	a.history["AAPL"] = RawHistory{Bars: []RawBar{
		{Time: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), Close: "2"},
		{Time: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Close: "1"},
	}}

	o := newTestOrchestrator(a, &sleepRecorder{})
	points, err := o.FetchHistory(context.Background(), "AAPL", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("FetchHistory() がエラーを返した: %v", err)
	}
	if len(points) != 2 || points[0].Date != "2026-03-02" || points[1].Date != "2026-03-03" {
		t.Errorf("points = %+v", points)
	}
}

func TestFetchHistory_EmptyIsNotFound(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", step{})
	a.history["AAPL"] = RawHistory{Bars: []RawBar{{Time: time.Now(), Close: ""}}}

	o := newTestOrchestrator(a, &sleepRecorder{})
	_, err := o.FetchHistory(context.Background(), "AAPL", time.Hour)
	if code := apiCode(t, err); code != model.ErrCodeSymbolNotFound {
		t.Errorf("code = %s, want %s", code, model.ErrCodeSymbolNotFound)
	}
}

func TestFetchHistory_RetriesRateLimit(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", step{err: ErrRateLimited}, step{})
	a.history["AAPL"] = RawHistory{Bars: []RawBar{{Time: time.Now(), Close: "5"}}}
	sleeper := &sleepRecorder{}

	o := newTestOrchestrator(a, sleeper)
	if _, err := o.FetchHistory(context.Background(), "AAPL", time.Hour); err != nil {
		t.Fatalf("FetchHistory() がエラーを返した: %v", err)
	}
	if len(sleeper.delays) != 1 || sleeper.delays[0] != time.Second {
		t.Errorf("delays = %v, want [1s]", sleeper.delays)
	}
}

// fakeBatchAdapter はFetchLatestBatchに対応するAdapter。
type fakeBatchAdapter struct {
	*fakeAdapter
	batchSize   int
	batchCalls  atomic.Int32
	rateLimited atomic.Int32
	perSymbol   map[string]BatchResult

	reqMu    sync.Mutex
	requests [][]string
}

func (f *fakeBatchAdapter) Requests() [][]string {
	f.reqMu.Lock()
	defer f.reqMu.Unlock()
	return append([][]string(nil), f.requests...)
}

func (f *fakeBatchAdapter) MaxBatchSize() int { return f.batchSize }

func (f *fakeBatchAdapter) FetchLatestBatch(ctx context.Context, symbols []string) (map[string]BatchResult, error) {
	f.batchCalls.Add(1)
	f.reqMu.Lock()
	f.requests = append(f.requests, append([]string(nil), symbols...))
	f.reqMu.Unlock()
	if f.rateLimited.Load() > 0 {
		f.rateLimited.Add(-1)
		return nil, ErrRateLimited
	}
	out := make(map[string]BatchResult, len(symbols))
	for _, s := range symbols {
		if br, ok := f.perSymbol[s]; ok {
			out[s] = br
		}
	}
	return out, nil
}

func TestFetchLatest_BatchAdapterSplitsAndMapsPerSymbolErrors(t *testing.T) {
	b := &fakeBatchAdapter{
		fakeAdapter: newFakeAdapter(),
		batchSize:   2,
		perSymbol: map[string]BatchResult{
			"AAPL": {Quote: RawQuote{Last: "1.005"}},
			"MSFT": {Err: ErrSymbolNotFound},
			"TSLA": {Quote: RawQuote{Last: "2"}},
			// GOOGは応答に含まれない
		},
	}
	b.rateLimited.Store(1)
	sleeper := &sleepRecorder{}

	o := NewOrchestrator(b, Config{Retry: DefaultRetryPolicy(), Sleep: sleeper.Sleep})
	quotes, err := o.FetchLatest(context.Background(), []string{"AAPL", "MSFT", "TSLA", "GOOG"})
	if err != nil {
		t.Fatalf("FetchLatest() がエラーを返した: %v", err)
	}

	if len(quotes) != 2 {
		t.Fatalf("len(quotes) = %d, want 2: %v", len(quotes), quotes)
	}
	if quotes["AAPL"].Price.String() != "1.01" {
		t.Errorf("AAPL = %s, want 1.01", quotes["AAPL"].Price)
	}
	if _, ok := quotes["TSLA"]; !ok {
		t.Error("TSLA は結果に含まれるべき")
	}
	// 2チャンク + レート制限による1回のリトライ
	if got := b.batchCalls.Load(); got != 3 {
		t.Errorf("batch calls = %d, want 3", got)
	}
	if len(sleeper.delays) != 1 {
		t.Errorf("バックオフは1回であるべき: delays = %v", sleeper.delays)
	}
}

var wantBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}

// 一括応答の中でMSFTだけがレート制限され続ける場合、MSFTのみを再取得し、AAPLとTSLAは残ること
func TestFetchLatest_BatchPerSymbolRateLimitRetriesOnlyThatSymbol(t *testing.T) {
	b := &fakeBatchAdapter{
		fakeAdapter: newFakeAdapter(),
		batchSize:   10,
		perSymbol: map[string]BatchResult{
			"AAPL": {Quote: RawQuote{Last: "150.00", PreviousClose: "148.50"}},
			"MSFT": {Err: fmt.Errorf("MSFT: credits: %w", ErrRateLimited)},
			"TSLA": {Quote: RawQuote{Last: "250.00"}},
		},
	}
	sleeper := &sleepRecorder{}

	o := NewOrchestrator(b, Config{Retry: DefaultRetryPolicy(), Sleep: sleeper.Sleep})
	quotes, err := o.FetchLatest(context.Background(), []string{"AAPL", "MSFT", "TSLA"})
	if err != nil {
		t.Fatalf("FetchLatest() がエラーを返した: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("AAPL と TSLA の2件が返るべき: %v", quotes)
	}
	if quotes["AAPL"].ChangePercent == nil || quotes["AAPL"].ChangePercent.String() != "1.01" {
		t.Errorf("AAPL の変化率は 1.01 であるべき: %v", quotes["AAPL"].ChangePercent)
	}

	requests := b.Requests()
	if len(requests) != 6 {
		t.Fatalf("一括取得の回数 = %d, want 6: %v", len(requests), requests)
	}
	for _, req := range requests[1:] {
		if fmt.Sprint(req) != "[MSFT]" {
			t.Errorf("再取得はMSFTのみであるべき: %v", req)
		}
	}
	if fmt.Sprint(sleeper.delays) != fmt.Sprint(wantBackoff) {
		t.Errorf("待機時間 = %v, want %v", sleeper.delays, wantBackoff)
	}
}

// チャンク全体のレート制限が解けた後にシンボル単位のレート制限が出ても、リトライ回数は共有されること
func TestFetchLatest_BatchChunkAndSymbolRateLimitShareBudget(t *testing.T) {
	b := &fakeBatchAdapter{
		fakeAdapter: newFakeAdapter(),
		batchSize:   10,
		perSymbol: map[string]BatchResult{
			"AAPL": {Quote: RawQuote{Last: "1"}},
			"MSFT": {Err: ErrRateLimited},
		},
	}
	b.rateLimited.Store(2)
	sleeper := &sleepRecorder{}

	o := NewOrchestrator(b, Config{Retry: DefaultRetryPolicy(), Sleep: sleeper.Sleep})
	quotes, err := o.FetchLatest(context.Background(), []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("FetchLatest() がエラーを返した: %v", err)
	}
	if _, ok := quotes["AAPL"]; !ok || len(quotes) != 1 {
		t.Errorf("AAPL のみが返るべき: %v", quotes)
	}
	if got := b.batchCalls.Load(); got != 6 {
		t.Errorf("一括取得の回数 = %d, want 6", got)
	}
	if fmt.Sprint(sleeper.delays) != fmt.Sprint(wantBackoff) {
		t.Errorf("待機時間 = %v, want %v", sleeper.delays, wantBackoff)
	}
}

// シンボル単位の取得でBだけがレート制限され続ける場合、AとCは返り、Bは1,2,4,8,16秒の待機後に除外されること
func TestFetchLatest_PerSymbolRateLimitExhaustedKeepsOthers(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", okStep("150"))
	a.script("MSFT", step{err: ErrRateLimited})
	a.script("TSLA", okStep("250"))
	sleeper := &sleepRecorder{}

	o := newTestOrchestrator(a, sleeper)
	quotes, err := o.FetchLatest(context.Background(), []string{"AAPL", "MSFT", "TSLA"})
	if err != nil {
		t.Fatalf("FetchLatest() がエラーを返した: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("AAPL と TSLA の2件が返るべき: %v", quotes)
	}
	if _, ok := quotes["MSFT"]; ok {
		t.Error("MSFT は除外されるべき")
	}
	if got := a.Calls("MSFT"); got != 6 {
		t.Errorf("MSFT の呼び出し回数 = %d, want 6", got)
	}
	if got := a.Calls("AAPL"); got != 1 {
		t.Errorf("AAPL の呼び出し回数 = %d, want 1", got)
	}
	if fmt.Sprint(sleeper.delays) != fmt.Sprint(wantBackoff) {
		t.Errorf("待機時間 = %v, want %v", sleeper.delays, wantBackoff)
	}
}

// countingMetrics はMetricsRecorderの呼び出しを記録する。
type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	retries  int
}

func (m *countingMetrics) RecordUpstreamCall(provider, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *countingMetrics) RecordUpstreamRetry(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *countingMetrics) RecordUpstreamLatency(string, time.Duration) {}

func TestOrchestrator_RecordsMetrics(t *testing.T) {
	a := newFakeAdapter()
	a.script("AAPL", step{err: ErrRateLimited}, okStep("1"))
	m := &countingMetrics{outcomes: map[string]int{}}

	o := NewOrchestrator(a, Config{Metrics: m, Sleep: (&sleepRecorder{}).Sleep})
	if _, err := o.FetchQuote(context.Background(), "AAPL"); err != nil {
		t.Fatalf("FetchQuote() がエラーを返した: %v", err)
	}

	if m.outcomes["rate_limited"] != 1 || m.outcomes["success"] != 1 {
		t.Errorf("結果別の呼び出し数 = %v, want rate_limited=1 success=1", m.outcomes)
	}
	if m.retries != 1 {
		t.Errorf("retries = %d, want 1", m.retries)
	}
}
