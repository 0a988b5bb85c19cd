package auth

import (
	"errors"
	"fmt"
)

// Reason はトークン検証失敗の理由を表す。ログとメトリクスのラベルにのみ使用する。
type Reason string

const (
	ReasonMalformed        Reason = "malformed"
	ReasonUnknownKey       Reason = "unknown_key"
	ReasonBadSignature     Reason = "bad_signature"
	ReasonIssuerMismatch   Reason = "issuer_mismatch"
	ReasonAudienceMismatch Reason = "audience_mismatch"
	ReasonExpired          Reason = "expired"
	ReasonNotYetValid      Reason = "not_yet_valid"
	ReasonTokenUseMismatch Reason = "token_use_mismatch"
	ReasonMissingIdentity  Reason = "missing_identity"
)

// ErrKeyNotFound はトークンのkidがKeyCacheに存在しないことを示す。
var ErrKeyNotFound = errors.New("signing key not found")

// AuthError はトークン検証の失敗を表す。
// クライアントには理由を区別せず401のみを返す。
type AuthError struct {
	Reason Reason
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth: %s", e.Reason)
	}
	return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Err
}
