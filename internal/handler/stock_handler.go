package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/stockfolio/internal/model"
	"github.com/hitoshi/stockfolio/internal/portfolio"
)

// 履歴期間として受け付ける日数の範囲。
const (
	minHistoryDays = 1
	maxHistoryDays = 3650
)

// QuoteServiceInterface は株価ハンドラーが必要とするサービスインターフェース。
// quote.Orchestratorが実装する。
type QuoteServiceInterface interface {
	// FetchLatest は複数シンボルの最新株価を取得する。取得できたものだけを返す。
	FetchLatest(ctx context.Context, symbols []string) (map[string]model.Quote, error)
	// FetchQuote は1シンボルの最新株価を取得する。
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
	// FetchHistory は直近window期間の日次終値を日付昇順で返す。
	FetchHistory(ctx context.Context, symbol string, window time.Duration) ([]model.HistoryPoint, error)
}

// StockHandler は株価照会のHTTPハンドラー。
type StockHandler struct {
	quotes         QuoteServiceInterface
	defaultSymbols []string
	historyWindow  time.Duration
}

// NewStockHandler はStockHandlerを生成する。
func NewStockHandler(quotes QuoteServiceInterface, defaultSymbols []string, historyWindow time.Duration) *StockHandler {
	return &StockHandler{
		quotes:         quotes,
		defaultSymbols: defaultSymbols,
		historyWindow:  historyWindow,
	}
}

// quoteResponse は単一銘柄照会のAPIレスポンス。
type quoteResponse struct {
	Symbol string       `json:"symbol"`
	Price  json.Number  `json:"price"`
	Change *json.Number `json:"change,omitempty"`
}

// historyPointResponse は履歴1点のAPIレスポンス。
type historyPointResponse struct {
	Date  string      `json:"date"`
	Price json.Number `json:"price"`
}

// ListStocks は既定銘柄の最新価格を返す。
// GET /api/stocks
func (h *StockHandler) ListStocks(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.quotes.FetchLatest(r.Context(), h.defaultSymbols)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make(map[string]json.Number, len(quotes))
	for symbol, q := range quotes {
		resp[symbol] = json.Number(q.Price.StringFixed(2))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SearchStock は1銘柄の価格と前日比を返す。
// GET /api/searchstock?symbol=AAPL
func (h *StockHandler) SearchStock(w http.ResponseWriter, r *http.Request) {
	symbol, err := portfolio.ParseSymbol(r.URL.Query().Get("symbol"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	q, err := h.quotes.FetchQuote(r.Context(), symbol)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := quoteResponse{
		Symbol: q.Symbol,
		Price:  json.Number(q.Price.StringFixed(2)),
	}
	if q.ChangePercent != nil {
		change := json.Number(q.ChangePercent.StringFixed(2))
		resp.Change = &change
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory は日次終値の履歴を返す。
// GET /api/stocks/history?symbol=AAPL&days=30
func (h *StockHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol, err := portfolio.ParseSymbol(r.URL.Query().Get("symbol"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	window, err := h.parseWindow(r.URL.Query().Get("days"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	points, err := h.quotes.FetchHistory(r.Context(), symbol, window)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]historyPointResponse, 0, len(points))
	for _, p := range points {
		resp = append(resp, historyPointResponse{
			Date:  p.Date,
			Price: json.Number(p.Close.StringFixed(2)),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseWindow はdaysクエリを期間に変換する。未指定の場合は既定の期間。
func (h *StockHandler) parseWindow(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.historyWindow, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < minHistoryDays || days > maxHistoryDays {
		return 0, model.NewInvalidRangeError(raw)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}
