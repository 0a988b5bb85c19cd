package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods  = "GET, POST, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-ID"
	corsExposeHeaders = "X-Request-ID, Retry-After"
	corsMaxAge        = "86400"
)

// NewCORSMiddleware は許可オリジンに対するCORSミドルウェアを返す。
//
// allowedOriginsはカンマ区切りで複数指定でき、"*" は全オリジンを許可する。
// 一致したオリジンのみをAccess-Control-Allow-Originとして返し、
// 一致しない場合はCORSヘッダーを付けずに処理を続ける（ブラウザ側で遮断される）。
// ベアラートークン方式のためAllow-Credentialsは付けない。
// OPTIONSリクエストは後続に渡さず204で応答する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	allowAll, origins := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && origins[origin]:
				h.Set("Access-Control-Allow-Origin", origin)
			case origin == "" && len(origins) == 1:
				// 非ブラウザクライアント向けに単一オリジン構成では常に返す
				for o := range origins {
					h.Set("Access-Control-Allow-Origin", o)
				}
			}

			if h.Get("Access-Control-Allow-Origin") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseOrigins(raw string) (bool, map[string]bool) {
	origins := make(map[string]bool)
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			return true, nil
		}
		origins[o] = true
	}
	return false, origins
}
