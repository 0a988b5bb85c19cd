package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/hitoshi/stockfolio/internal/config"
	"github.com/hitoshi/stockfolio/internal/database"
	"github.com/hitoshi/stockfolio/internal/provider"
	"github.com/hitoshi/stockfolio/internal/provider/alphavantage"
	"github.com/hitoshi/stockfolio/internal/provider/twelvedata"
	"github.com/hitoshi/stockfolio/internal/provider/yahoo"
	"github.com/hitoshi/stockfolio/internal/quote"
	"github.com/hitoshi/stockfolio/internal/repository"
	"github.com/hitoshi/stockfolio/internal/secrets"
	"github.com/hitoshi/stockfolio/internal/security"
)

// awsConfigLoader はAWS SDKの設定を読み込む関数。テストで差し替える。
type awsConfigLoader func(ctx context.Context, region string) (aws.Config, error)

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
}

// resolveSecrets はssm:参照を含む設定値をParameter Storeから解決する。
// 参照が無い場合はAWS設定を読み込まない。
func resolveSecrets(ctx context.Context, cfg *config.Config, load awsConfigLoader) error {
	if !cfg.NeedsSecrets() {
		return nil
	}
	awsCfg, err := load(ctx, cfg.AWSRegion)
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}
	if err := cfg.ResolveSecrets(ctx, secrets.NewParameterStore(awsCfg)); err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}
	return nil
}

// upstreamEndpoints は外部接続先のURL一覧を返す。
// 株価プロバイダは選択中のもののみを含む。
func upstreamEndpoints(cfg *config.Config) []string {
	endpoints := []string{cfg.AuthJWKSURL}
	switch cfg.QuoteProvider {
	case config.ProviderAlphaVantage:
		endpoints = append(endpoints, orDefault(cfg.AlphaVantageBaseURL, alphavantage.DefaultBaseURL))
	case config.ProviderTwelveData:
		endpoints = append(endpoints, orDefault(cfg.TwelveDataBaseURL, twelvedata.DefaultBaseURL))
	default:
		endpoints = append(endpoints, orDefault(cfg.YahooBaseURL, yahoo.DefaultBaseURL))
	}
	return endpoints
}

// validateEndpoints はSSRFガード有効時に接続先URLを静的に検査する。
func validateEndpoints(cfg *config.Config) error {
	if !cfg.OutboundSSRFGuard {
		return nil
	}
	for _, endpoint := range upstreamEndpoints(cfg) {
		if err := security.ValidateEndpoint(endpoint); err != nil {
			return fmt.Errorf("outbound endpoint rejected: %w", err)
		}
	}
	return nil
}

// newQuoteAdapter は設定されたプロバイダのAdapterを生成する。
func newQuoteAdapter(cfg *config.Config, httpClient *http.Client) (quote.Adapter, error) {
	switch cfg.QuoteProvider {
	case config.ProviderYahoo:
		return yahoo.New(cfg.YahooBaseURL, provider.NewClient(yahoo.Name, httpClient)), nil
	case config.ProviderAlphaVantage:
		return alphavantage.New(cfg.AlphaVantageBaseURL, cfg.AlphaVantageAPIKey,
			provider.NewClient(alphavantage.Name, httpClient)), nil
	case config.ProviderTwelveData:
		return twelvedata.New(cfg.TwelveDataBaseURL, cfg.TwelveDataAPIKey,
			provider.NewClient(twelvedata.Name, httpClient)), nil
	default:
		return nil, fmt.Errorf("unsupported quote provider %q", cfg.QuoteProvider)
	}
}

// newPortfolioRepo は設定されたバックエンドのリポジトリを生成する。
// postgresの場合は接続を確認し、返したcloseで接続を閉じる。
func newPortfolioRepo(ctx context.Context, cfg *config.Config, load awsConfigLoader) (repository.PortfolioRepository, func() error, error) {
	noop := func() error { return nil }

	switch cfg.PortfolioBackend {
	case config.BackendPostgres:
		db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.Ping(ctx, db, 5*time.Second); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return repository.NewPostgresPortfolioRepo(db), db.Close, nil

	case config.BackendDynamoDB:
		awsCfg, err := load(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		slog.Info("using dynamodb portfolio store", slog.String("table", cfg.DynamoDBTable))
		return repository.NewDynamoDBPortfolioRepo(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable), noop, nil

	case config.BackendMemory:
		slog.Warn("using in-memory portfolio store; data is lost on restart")
		return repository.NewMemoryPortfolioRepo(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unsupported portfolio backend %q", cfg.PortfolioBackend)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
