package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_TEST"
	testAudience = "test-client-id"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("RSA鍵の生成に失敗: %v", err)
	}
	return key
}

func signingKey(kid string, priv *rsa.PrivateKey) SigningKey {
	return SigningKey{KeyID: kid, Algorithm: "RS256", PublicKey: &priv.PublicKey}
}

// fakeFetcher は呼び出し回数を数え、設定された結果を順に返すKeySetFetcher。
// 結果を使い切った後は最後の結果を返し続ける。
type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	block   chan struct{}
	entered chan struct{}
}

type fetchResult struct {
	keys map[string]SigningKey
	err  error
}

func (f *fakeFetcher) FetchKeySet(ctx context.Context) (map[string]SigningKey, error) {
	f.mu.Lock()
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	res := f.results[idx]
	block := f.block
	entered := f.entered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	return res.keys, res.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingRecorder はMetricsRecorderの呼び出しを記録する。
type countingRecorder struct {
	mu        sync.Mutex
	refreshes map[string]int
	failures  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{refreshes: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) RecordKeyRefresh(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes[outcome]++
}

func (r *countingRecorder) RecordAuthFailure(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[reason]++
}

type tokenOptions struct {
	kid      string
	issuer   string
	audience string
	email    string
	tokenUse string
	issuedAt time.Time
	expires  time.Time
}

func defaultTokenOptions() tokenOptions {
	return tokenOptions{
		kid:      "k1",
		issuer:   testIssuer,
		audience: testAudience,
		email:    "alice@example.com",
		tokenUse: "id",
		issuedAt: testNow.Add(-time.Minute),
		expires:  testNow.Add(time.Hour),
	}
}

func signToken(t *testing.T, priv *rsa.PrivateKey, opts tokenOptions) string {
	t.Helper()
	claims := idTokenClaims{
		Email:    opts.email,
		TokenUse: opts.tokenUse,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub-123",
			Issuer:    opts.issuer,
			Audience:  jwt.ClaimStrings{opts.audience},
			IssuedAt:  jwt.NewNumericDate(opts.issuedAt),
			ExpiresAt: jwt.NewNumericDate(opts.expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if opts.kid != "" {
		token.Header["kid"] = opts.kid
	}
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return signed
}
