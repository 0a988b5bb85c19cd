package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/stockfolio/internal/auth"
	"github.com/hitoshi/stockfolio/internal/middleware"
	"github.com/hitoshi/stockfolio/internal/model"
)

// mockQuoteService はテスト用のQuoteServiceInterface実装。
type mockQuoteService struct {
	fetchLatestFn  func(ctx context.Context, symbols []string) (map[string]model.Quote, error)
	fetchQuoteFn   func(ctx context.Context, symbol string) (model.Quote, error)
	fetchHistoryFn func(ctx context.Context, symbol string, window time.Duration) ([]model.HistoryPoint, error)
}

func (m *mockQuoteService) FetchLatest(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	if m.fetchLatestFn != nil {
		return m.fetchLatestFn(ctx, symbols)
	}
	return nil, model.NewNoDataError()
}

func (m *mockQuoteService) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if m.fetchQuoteFn != nil {
		return m.fetchQuoteFn(ctx, symbol)
	}
	return model.Quote{}, model.NewSymbolNotFoundError(symbol)
}

func (m *mockQuoteService) FetchHistory(ctx context.Context, symbol string, window time.Duration) ([]model.HistoryPoint, error) {
	if m.fetchHistoryFn != nil {
		return m.fetchHistoryFn(ctx, symbol, window)
	}
	return nil, model.NewSymbolNotFoundError(symbol)
}

// mockPortfolioService はテスト用のPortfolioServiceInterface実装。
type mockPortfolioService struct {
	mu      sync.Mutex
	symbols map[string][]string
	addErr  error
}

func newMockPortfolioService() *mockPortfolioService {
	return &mockPortfolioService{symbols: map[string][]string{}}
}

func (m *mockPortfolioService) Add(_ context.Context, email, raw string) (string, error) {
	if m.addErr != nil {
		return "", m.addErr
	}
	if raw == "" {
		return "", model.NewInvalidSymbolError("")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[email] = append(m.symbols[email], raw)
	return raw, nil
}

func (m *mockPortfolioService) List(_ context.Context, email string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.symbols[email]; s != nil {
		return s, nil
	}
	return []string{}, nil
}

// fakeVerifier は"good"トークンのみを受け付けるTokenVerifier実装。
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, credential string) (*auth.Claims, error) {
	if credential != "good" {
		return nil, &auth.AuthError{Reason: auth.ReasonBadSignature, Err: errors.New("bad")}
	}
	return &auth.Claims{Email: "alice@example.com"}, nil
}

func authed(r *http.Request) *http.Request {
	return r.WithContext(middleware.ContextWithClaims(r.Context(), &auth.Claims{Email: "alice@example.com"}))
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
