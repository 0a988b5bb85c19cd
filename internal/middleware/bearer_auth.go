// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/stockfolio/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// TokenVerifier はベアラートークンの検証に必要なインターフェース。
// auth.Verifierが実装する。
type TokenVerifier interface {
	Verify(ctx context.Context, credential string) (*auth.Claims, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 検証済みクレームをリクエストコンテキストに注入するミドルウェアを返す。
// 失敗理由はログにのみ記録し、クライアントには常に同じ401を返す。
func NewBearerAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Warn("missing bearer token", slog.String("path", r.URL.Path))
				setLogAuthReason(r.Context(), "missing_token")
				WriteUnauthorized(w, false)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				reason := "unknown"
				var authErr *auth.AuthError
				if errors.As(err, &authErr) {
					reason = string(authErr.Reason)
				}
				logger.Warn("token verification failed",
					slog.String("reason", reason),
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
				)
				setLogAuthReason(r.Context(), reason)
				WriteUnauthorized(w, true)
				return
			}

			setLogEmail(r.Context(), claims.Email)
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// bearerToken は"Bearer <token>"形式からトークンを取り出す。スキームは大文字小文字を区別しない。
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// EmailFromContext は認証済みユーザーのメールアドレスを取得する。
func EmailFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Email == "" {
		return "", false
	}
	return claims.Email, true
}

// ContextWithClaims はコンテキストにクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
