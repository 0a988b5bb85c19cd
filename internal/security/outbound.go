// Package security はアウトバウンド通信の安全性に関する機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は外部APIへの接続で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedPrefixes は接続先として拒否するアドレス範囲。
// クラウドメタデータ (169.254.169.254) はリンクローカルに含まれる。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// OutboundConfig はアウトバウンドHTTPクライアントの設定。
type OutboundConfig struct {
	// Timeout はリクエスト全体のタイムアウト。
	Timeout time.Duration
	// Guard がtrueの場合、safeurlによりプライベートアドレスへの接続を拒否する。
	Guard bool
}

// NewOutboundClient はJWKS取得と株価プロバイダ呼び出しに使うHTTPクライアントを生成する。
// Guardが有効な場合、safeurlがDNS解決後のIPアドレスをDialerで検証するため
// DNS再バインディングにも対応する。
func NewOutboundClient(cfg OutboundConfig) *http.Client {
	if !cfg.Guard {
		return &http.Client{Timeout: cfg.Timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(cfg.Timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateEndpoint は設定されたエンドポイントURLを起動時に静的検証する。
// DNS解決は行わない。
func ValidateEndpoint(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked IP address: %s", addr)
			}
		}
	}

	return nil
}
