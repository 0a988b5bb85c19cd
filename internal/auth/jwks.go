package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-jose/go-jose/v4"
)

// maxJWKSSize はJWKSレスポンスの最大サイズ（1MB）。
const maxJWKSSize = 1 << 20

// HTTPKeySetFetcher はJWKSエンドポイントから鍵セットを取得する。
type HTTPKeySetFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPKeySetFetcher は新しいHTTPKeySetFetcherを生成する。
func NewHTTPKeySetFetcher(url string, client *http.Client) *HTTPKeySetFetcher {
	return &HTTPKeySetFetcher{url: url, client: client}
}

// FetchKeySet はJWKSを取得し、署名用のRSA公開鍵のみを返す。
// kidの無い鍵、暗号化用の鍵、RSA以外の鍵は無視する。
func (f *HTTPKeySetFetcher) FetchKeySet(ctx context.Context) (map[string]SigningKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSSize)).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	return signingKeysFrom(set), nil
}

func signingKeysFrom(set jose.JSONWebKeySet) map[string]SigningKey {
	keys := make(map[string]SigningKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.KeyID == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, ok := k.Key.(*rsa.PublicKey)
		if !ok {
			continue
		}
		alg := k.Algorithm
		if alg == "" {
			alg = "RS256"
		}
		keys[k.KeyID] = SigningKey{KeyID: k.KeyID, Algorithm: alg, PublicKey: pub}
	}
	return keys
}
