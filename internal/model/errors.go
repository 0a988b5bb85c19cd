// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// クライアントに返す原因カテゴリと対処方法を含む。
// 内部の詳細（上流のレスポンス本文や署名検証の失敗理由）は含めない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, quote, system
	Action   string // クライアント向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidSymbol       = "INVALID_SYMBOL"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidRange        = "INVALID_RANGE"
	ErrCodeSymbolNotFound      = "SYMBOL_NOT_FOUND"
	ErrCodeNoData              = "NO_DATA"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeRequestTimeout      = "REQUEST_TIMEOUT"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// 失敗理由は区別せず、常に同じ内容を返す。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Missing or invalid credentials.",
		Category: "auth",
		Action:   "Sign in again and retry with a valid bearer token.",
	}
}

// NewInvalidSymbolError は不正なシンボル指定のエラーを生成する。
func NewInvalidSymbolError(symbol string) *APIError {
	if symbol == "" {
		return &APIError{
			Code:     ErrCodeInvalidSymbol,
			Message:  "Symbol is required.",
			Category: "validation",
			Action:   "Specify a ticker symbol such as AAPL.",
		}
	}
	return &APIError{
		Code:     ErrCodeInvalidSymbol,
		Message:  fmt.Sprintf("Invalid symbol: %s", symbol),
		Category: "validation",
		Action:   "Use 1-15 characters of letters, digits, '.', '-', '^' or '='.",
	}
}

// NewInvalidRequestError はリクエスト本文が解釈できない場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request format and retry.",
	}
}

// NewInvalidRangeError は履歴期間の指定が不正な場合のエラーを生成する。
func NewInvalidRangeError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRange,
		Message:  fmt.Sprintf("Invalid history range: %s", value),
		Category: "validation",
		Action:   "Specify days as an integer between 1 and 3650.",
	}
}

// NewSymbolNotFoundError は上流でシンボルが見つからない場合のエラーを生成する。
func NewSymbolNotFoundError(symbol string) *APIError {
	return &APIError{
		Code:     ErrCodeSymbolNotFound,
		Message:  fmt.Sprintf("No data found for symbol: %s", symbol),
		Category: "quote",
		Action:   "Check the ticker symbol.",
	}
}

// NewNoDataError は一括取得で1件も成功しなかった場合のエラーを生成する。
func NewNoDataError() *APIError {
	return &APIError{
		Code:     ErrCodeNoData,
		Message:  "No stock data available.",
		Category: "quote",
		Action:   "Wait a moment and retry.",
	}
}

// NewProviderUnavailableError は上流プロバイダが利用できない場合のエラーを生成する。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "Market data provider is unavailable.",
		Category: "quote",
		Action:   "Wait a moment and retry.",
	}
}

// NewRequestTimeoutError はリクエスト全体の期限切れエラーを生成する。
func NewRequestTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestTimeout,
		Message:  "The request took too long to complete.",
		Category: "system",
		Action:   "Retry with fewer symbols or try again later.",
	}
}

// NewRateLimitExceededError は利用者単位の流量制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Wait for the number of seconds in Retry-After and retry.",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Wait a moment and retry.",
	}
}
