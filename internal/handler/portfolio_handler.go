package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hitoshi/stockfolio/internal/model"
)

// maxPortfolioBodyBytes はウォッチリスト追加リクエスト本文の上限。
const maxPortfolioBodyBytes = 4 << 10

// PortfolioServiceInterface はポートフォリオハンドラーが必要とするサービスインターフェース。
// portfolio.Serviceが実装する。
type PortfolioServiceInterface interface {
	Add(ctx context.Context, email, rawSymbol string) (string, error)
	List(ctx context.Context, email string) ([]string, error)
}

// PortfolioHandler はウォッチリスト管理のHTTPハンドラー。
type PortfolioHandler struct {
	service PortfolioServiceInterface
}

// NewPortfolioHandler はPortfolioHandlerを生成する。
func NewPortfolioHandler(service PortfolioServiceInterface) *PortfolioHandler {
	return &PortfolioHandler{service: service}
}

// addSymbolRequest はウォッチリスト追加リクエストのボディ。
type addSymbolRequest struct {
	Symbol string `json:"symbol"`
}

// ListPortfolio は認証ユーザーのウォッチリストを返す。
// GET /api/portfolio
func (h *PortfolioHandler) ListPortfolio(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	symbols, err := h.service.List(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}

// AddSymbol はウォッチリストにシンボルを追加する。
// POST /api/portfolio
func (h *PortfolioHandler) AddSymbol(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	var req addSymbolRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPortfolioBodyBytes)).Decode(&req); err != nil {
		handleServiceError(w, r, model.NewInvalidRequestError("body must be a JSON object with a symbol field"))
		return
	}

	symbol, err := h.service.Add(r.Context(), email, req.Symbol)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%s added to portfolio", symbol),
	})
}
