package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/stockfolio/internal/auth"
	"github.com/hitoshi/stockfolio/internal/config"
	"github.com/hitoshi/stockfolio/internal/database"
	"github.com/hitoshi/stockfolio/internal/handler"
	"github.com/hitoshi/stockfolio/internal/logger"
	"github.com/hitoshi/stockfolio/internal/metrics"
	"github.com/hitoshi/stockfolio/internal/middleware"
	"github.com/hitoshi/stockfolio/internal/portfolio"
	"github.com/hitoshi/stockfolio/internal/quote"
	"github.com/hitoshi/stockfolio/internal/security"
	"github.com/hitoshi/stockfolio/internal/worker/keyrefresh"
)

// defaultPort はSERVER_PORT未設定時のポート。
const defaultPort = "5000"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定が読めない場合もエラーをJSONで記録できるようにする
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if !cmd.RequiresConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("quote_provider", cfg.QuoteProvider),
		slog.String("portfolio_backend", cfg.PortfolioBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. シークレットの解決
	if err := resolveSecrets(ctx, cfg, loadAWSConfig); err != nil {
		return err
	}

	// 2. メトリクス
	registry := metrics.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. アウトバウンドHTTPクライアント
	if err := validateEndpoints(cfg); err != nil {
		return err
	}
	httpClient := security.NewOutboundClient(security.OutboundConfig{
		Timeout: cfg.UpstreamTimeout,
		Guard:   cfg.OutboundSSRFGuard,
	})

	// 4. 鍵キャッシュとトークン検証
	keys := auth.NewKeyCache(auth.NewHTTPKeySetFetcher(cfg.AuthJWKSURL, httpClient), auth.KeyCacheConfig{
		MinRefreshInterval: cfg.AuthKeyRefreshCooldown,
		Metrics:            collector,
		Logger:             slog.Default(),
	})
	if err := keys.Load(ctx); err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	slog.Info("signing keys loaded", slog.Int("keys", keys.Len()))

	verifier := auth.NewVerifier(keys, auth.VerifierConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		TokenUse: cfg.AuthTokenUse,
		Leeway:   cfg.AuthLeeway,
		Metrics:  collector,
		Logger:   slog.Default(),
	})

	// 5. 鍵の定期更新
	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	go keyrefresh.NewScheduler(keys, slog.Default()).Start(refreshCtx, cfg.AuthKeyRefreshInterval)

	// 6. 株価プロバイダ
	adapter, err := newQuoteAdapter(cfg, httpClient)
	if err != nil {
		return err
	}
	orchestrator := quote.NewOrchestrator(adapter, quote.Config{
		Retry: quote.RetryPolicy{
			MaxRetries: cfg.UpstreamMaxRetries,
			BaseDelay:  cfg.UpstreamBackoffBase,
		},
		CallTimeout: cfg.UpstreamTimeout,
		FanOut:      cfg.UpstreamFanOut,
		Metrics:     collector,
		Logger:      slog.Default(),
	})

	// 7. ポートフォリオストア
	repo, closeRepo, err := newPortfolioRepo(ctx, cfg, loadAWSConfig)
	if err != nil {
		return err
	}
	defer closeRepo()
	portfolioService := portfolio.NewService(repo)

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Verifier:          verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		RequestTimeout:    cfg.RequestTimeout,
		StatusRecorder:    collector,
		MetricsHandler:    metrics.Handler(registry),
		QuoteService:      orchestrator,
		DefaultSymbols:    cfg.DefaultSymbols,
		HistoryWindow:     cfg.HistoryWindow,
		PortfolioService:  portfolioService,
	})

	// 9. HTTPサーバーの起動
	// 株価ルートはREQUEST_TIMEOUTまで待つため、書き込みタイムアウトはそれより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("provider", orchestrator.Provider()),
			slog.Int("fan_out", orchestrator.FanOut()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。postgresバックエンド専用。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.PortfolioBackend != config.BackendPostgres {
		return fmt.Errorf("migrate requires PORTFOLIO_BACKEND=%s, got %q", config.BackendPostgres, cfg.PortfolioBackend)
	}
	if err := resolveSecrets(ctx, cfg, loadAWSConfig); err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードとクエリを伏せる。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
