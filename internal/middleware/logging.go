package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードと書き込みバイト数を記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Unwrap はhttp.ResponseControllerが元のResponseWriterに到達できるようにする。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// logFields はロギングミドルウェアより内側で判明した値をアクセスログへ渡す。
// 認証ミドルウェアはロギングの内側で動くため、contextの値ではなく共有ポインタで受け渡す。
type logFields struct {
	email      string
	authReason string
}

var logFieldsContextKey = contextKey("log_fields")

func logFieldsFrom(ctx context.Context) *logFields {
	f, _ := ctx.Value(logFieldsContextKey).(*logFields)
	return f
}

// setLogEmail は認証済みメールアドレスをアクセスログ用に記録する。
func setLogEmail(ctx context.Context, email string) {
	if f := logFieldsFrom(ctx); f != nil {
		f.email = email
	}
}

// setLogAuthReason は認証失敗の理由をアクセスログ用に記録する。
// レスポンスは理由を区別しないため、ここでのみ追跡できる。
func setLogAuthReason(ctx context.Context, reason string) {
	if f := logFieldsFrom(ctx); f != nil {
		f.authReason = reason
	}
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、bytes、request_idと
// 判明している場合はemailまたはauth_reasonを含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			fields := &logFields{}
			ctx := context.WithValue(r.Context(), logFieldsContextKey, fields)

			next.ServeHTTP(rec, r.WithContext(ctx))

			durationMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
				slog.Int("bytes", rec.bytes),
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if fields.email != "" {
				attrs = append(attrs, slog.String("email", fields.email))
			}
			if fields.authReason != "" {
				attrs = append(attrs, slog.String("auth_reason", fields.authReason))
			}

			level := slog.LevelInfo
			switch {
			case rec.statusCode >= 500:
				level = slog.LevelError
			case rec.statusCode >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}
