package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 対応するポートフォリオストア。
const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// 対応する株価プロバイダ。
const (
	ProviderYahoo        = "yahoo"
	ProviderAlphaVantage = "alphavantage"
	ProviderTwelveData   = "twelvedata"
)

// SecretPrefix はSSM Parameter Store参照を示す値の接頭辞。
const SecretPrefix = "ssm:"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Auth
	AuthIssuer             string
	AuthAudience           string
	AuthJWKSURL            string
	AuthTokenUse           string
	AuthLeeway             time.Duration
	AuthKeyRefreshCooldown time.Duration
	// AuthKeyRefreshInterval は鍵セットの定期更新間隔。0の場合は定期更新しない。
	AuthKeyRefreshInterval time.Duration

	// Quote providers
	QuoteProvider       string
	AlphaVantageAPIKey  string
	TwelveDataAPIKey    string
	YahooBaseURL        string
	AlphaVantageBaseURL string
	TwelveDataBaseURL   string

	// Upstream
	UpstreamTimeout     time.Duration
	UpstreamMaxRetries  int
	UpstreamBackoffBase time.Duration
	UpstreamFanOut      int
	RequestTimeout      time.Duration

	// Quotes
	HistoryWindow  time.Duration
	DefaultSymbols []string

	// Portfolio store
	PortfolioBackend string
	DatabaseURL      string
	DynamoDBTable    string
	AWSRegion        string

	// Rate Limit
	RateLimitGeneral int

	// Outbound
	OutboundSSRFGuard bool

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

var defaultSymbols = []string{"AAPL", "GOOGL", "TSLA", "MSFT", "AMZN", "NVDA"}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.AuthIssuer = strings.TrimRight(os.Getenv("AUTH_ISSUER"), "/")
	if cfg.AuthIssuer == "" {
		missing = append(missing, "AUTH_ISSUER")
	}

	cfg.AuthAudience = os.Getenv("AUTH_AUDIENCE")
	if cfg.AuthAudience == "" {
		missing = append(missing, "AUTH_AUDIENCE")
	}

	cfg.PortfolioBackend = strings.ToLower(getEnvString("PORTFOLIO_BACKEND", BackendPostgres))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.PortfolioBackend == BackendPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.QuoteProvider = strings.ToLower(getEnvString("QUOTE_PROVIDER", ProviderYahoo))
	cfg.AlphaVantageAPIKey = os.Getenv("ALPHAVANTAGE_API_KEY")
	cfg.TwelveDataAPIKey = os.Getenv("TWELVEDATA_API_KEY")
	switch cfg.QuoteProvider {
	case ProviderAlphaVantage:
		if cfg.AlphaVantageAPIKey == "" {
			missing = append(missing, "ALPHAVANTAGE_API_KEY")
		}
	case ProviderTwelveData:
		if cfg.TwelveDataAPIKey == "" {
			missing = append(missing, "TWELVEDATA_API_KEY")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.QuoteProvider {
	case ProviderYahoo, ProviderAlphaVantage, ProviderTwelveData:
	default:
		return nil, fmt.Errorf("unsupported QUOTE_PROVIDER: %q", cfg.QuoteProvider)
	}
	switch cfg.PortfolioBackend {
	case BackendPostgres, BackendDynamoDB, BackendMemory:
	default:
		return nil, fmt.Errorf("unsupported PORTFOLIO_BACKEND: %q", cfg.PortfolioBackend)
	}

	// Optional fields with defaults
	cfg.AuthJWKSURL = getEnvString("AUTH_JWKS_URL", cfg.AuthIssuer+"/.well-known/jwks.json")
	cfg.AuthTokenUse = getEnvString("AUTH_TOKEN_USE", "")
	cfg.AuthLeeway = getEnvDuration("AUTH_LEEWAY", 0)
	cfg.AuthKeyRefreshCooldown = getEnvDuration("AUTH_KEY_REFRESH_COOLDOWN", 0)
	cfg.AuthKeyRefreshInterval = getEnvDuration("AUTH_KEY_REFRESH_INTERVAL", time.Hour)
	cfg.YahooBaseURL = getEnvString("YAHOO_BASE_URL", "")
	cfg.AlphaVantageBaseURL = getEnvString("ALPHAVANTAGE_BASE_URL", "")
	cfg.TwelveDataBaseURL = getEnvString("TWELVEDATA_BASE_URL", "")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 5*time.Second)
	cfg.UpstreamMaxRetries = getEnvInt("UPSTREAM_MAX_RETRIES", 5)
	cfg.UpstreamBackoffBase = getEnvDuration("UPSTREAM_BACKOFF_BASE", time.Second)
	cfg.UpstreamFanOut = getEnvInt("UPSTREAM_FANOUT", 0)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 60*time.Second)
	cfg.HistoryWindow = getEnvDuration("HISTORY_WINDOW", 30*24*time.Hour)
	cfg.DefaultSymbols = getEnvList("DEFAULT_SYMBOLS", defaultSymbols)
	cfg.DynamoDBTable = getEnvString("DYNAMODB_TABLE", "UserPortfolios")
	cfg.AWSRegion = getEnvString("AWS_REGION", "us-east-1")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.OutboundSSRFGuard = getEnvBool("OUTBOUND_SSRF_GUARD", true)
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// SecretGetter は名前から秘密情報を取得する。
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// NeedsSecrets はssm:参照を含む設定値があるかを返す。
func (c *Config) NeedsSecrets() bool {
	for _, p := range c.secretFields() {
		if strings.HasPrefix(*p, SecretPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets はssm:で始まる設定値をSecretGetterで解決した値に置き換える。
func (c *Config) ResolveSecrets(ctx context.Context, getter SecretGetter) error {
	for _, p := range c.secretFields() {
		name, ok := strings.CutPrefix(*p, SecretPrefix)
		if !ok {
			continue
		}
		v, err := getter.GetSecret(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to resolve secret %s: %w", name, err)
		}
		*p = v
	}
	return nil
}

func (c *Config) secretFields() []*string {
	return []*string{&c.DatabaseURL, &c.AlphaVantageAPIKey, &c.TwelveDataAPIKey}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を大文字化して返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultVal...)
	}
	return out
}
