// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証層と株価取得層から利用する。
type MetricsCollector interface {
	RecordUpstreamCall(provider, outcome string)
	RecordUpstreamRetry(provider string)
	RecordUpstreamLatency(provider string, d time.Duration)
	RecordAuthFailure(reason string)
	RecordKeyRefresh(outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamCalls   *prometheus.CounterVec
	upstreamRetries *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	authFailures    *prometheus.CounterVec
	keyRefreshes    *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockfolio_upstream_calls_total",
			Help: "プロバイダ呼び出しの結果別合計数",
		}, []string{"provider", "outcome"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockfolio_upstream_retries_total",
			Help: "レート制限によるリトライの合計数",
		}, []string{"provider"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockfolio_upstream_latency_seconds",
			Help:    "プロバイダ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockfolio_auth_failures_total",
			Help: "トークン検証失敗の理由別合計数",
		}, []string{"reason"}),
		keyRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockfolio_key_refreshes_total",
			Help: "署名鍵セット再取得の結果別合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockfolio_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.upstreamCalls,
		c.upstreamRetries,
		c.upstreamLatency,
		c.authFailures,
		c.keyRefreshes,
		c.httpStatus,
	)

	return c
}

// RecordUpstreamCall はプロバイダ呼び出し1回の結果を記録する。
func (c *Collector) RecordUpstreamCall(provider, outcome string) {
	c.upstreamCalls.WithLabelValues(provider, outcome).Inc()
}

// RecordUpstreamRetry はリトライを記録する。
func (c *Collector) RecordUpstreamRetry(provider string) {
	c.upstreamRetries.WithLabelValues(provider).Inc()
}

// RecordUpstreamLatency はプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(provider string, d time.Duration) {
	c.upstreamLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordAuthFailure はトークン検証失敗を記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordKeyRefresh は鍵セット再取得の結果を記録する。
func (c *Collector) RecordKeyRefresh(outcome string) {
	c.keyRefreshes.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NewRegistry はGoランタイムとプロセスのメトリクスを登録済みのレジストリを返す。
// グローバルなDefaultRegistererは使わない。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler は/metrics用のスクレイプハンドラーを返す。
// スクレイプ自体の回数と処理中件数もregに記録する。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:      reg,
		ErrorHandling: promhttp.ContinueOnError,
	}))
}
