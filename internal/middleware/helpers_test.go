package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/stockfolio/internal/auth"
)

// fakeVerifier はテスト用のTokenVerifier実装。
type fakeVerifier struct {
	claims *auth.Claims
	err    error
	got    string
}

func (f *fakeVerifier) Verify(_ context.Context, credential string) (*auth.Claims, error) {
	f.got = credential
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

// requestWithEmail は認証済みのリクエストを生成する。
func requestWithEmail(r *http.Request, email string) *http.Request {
	return r.WithContext(ContextWithClaims(r.Context(), &auth.Claims{Email: email}))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
