package quote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited は上流がレート制限を通知したことを示す。リトライ対象となる唯一のエラー。
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrSymbolNotFound は上流がシンボルを認識しなかったことを示す。
	ErrSymbolNotFound = errors.New("symbol not found upstream")
	// ErrMalformedResponse は上流の本文を解釈できなかったことを示す。
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrCallTimeout は1回の上流呼び出しがタイムアウトしたことを示す。リトライしない。
	ErrCallTimeout = errors.New("upstream call timed out")
	// ErrRetriesExhausted はレート制限のリトライ上限に達したことを示す。
	ErrRetriesExhausted = errors.New("rate limit retries exhausted")
)

// StatusError は上流が想定外のHTTPステータスを返したことを示す。
type StatusError struct {
	Provider   string
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
}

// ClassifyHTTPStatus は上流のHTTPステータスコードをエラーに分類する。
// 200の場合はnilを返す。
func ClassifyHTTPStatus(provider string, statusCode int) error {
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case statusCode == http.StatusNotFound:
		return ErrSymbolNotFound
	default:
		return &StatusError{Provider: provider, StatusCode: statusCode}
	}
}

// outcomeOf はメトリクス用に呼び出し結果を分類する。
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSymbolNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrCallTimeout):
		return "timeout"
	default:
		return "error"
	}
}
