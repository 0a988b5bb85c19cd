package middleware

import (
	"context"
	"net/http"
	"time"
)

// NewRequestTimeoutMiddleware はリクエストコンテキストに全体の期限を設定する。
// 期限切れの応答はハンドラー側でREQUEST_TIMEOUTとして書き込む。
func NewRequestTimeoutMiddleware(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
