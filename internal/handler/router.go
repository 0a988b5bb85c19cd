package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/stockfolio/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Verifier          middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	RequestTimeout    time.Duration

	// メトリクス（nilの場合は/metricsを公開しない）
	StatusRecorder middleware.HTTPStatusRecorder
	MetricsHandler http.Handler

	// 株価
	QuoteService   QuoteServiceInterface
	DefaultSymbols []string
	HistoryWindow  time.Duration

	// ポートフォリオ
	PortfolioService PortfolioServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → Metrics → BearerAuth → RateLimit → RequestTimeout
//
// /healthと/metricsは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	stockHandler := NewStockHandler(deps.QuoteService, deps.DefaultSymbols, deps.HistoryWindow)
	portfolioHandler := NewPortfolioHandler(deps.PortfolioService)

	// --- 認証不要のルート ---
	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit → RequestTimeout
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Verifier, logger))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Use(middleware.NewRequestTimeoutMiddleware(deps.RequestTimeout))

		// 株価照会
		r.Get("/api/stocks", stockHandler.ListStocks)
		r.Get("/api/stocks/history", stockHandler.GetHistory)
		r.Get("/api/searchstock", stockHandler.SearchStock)

		// ウォッチリスト
		r.Get("/api/portfolio", portfolioHandler.ListPortfolio)
		r.Post("/api/portfolio", portfolioHandler.AddSymbol)
	})

	return r
}
