package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims は検証済みトークンから取り出したクレーム。
// 検証成功時にのみ生成され、リクエストの間だけ保持される。
type Claims struct {
	Email     string
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	TokenUse  string
}

// VerifierConfig はVerifierの設定を保持する。
type VerifierConfig struct {
	Issuer   string
	Audience string
	// TokenUse が空でない場合、token_useクレームの一致を要求する（例: "id"）。
	TokenUse string
	// Leeway は時刻系クレームの許容誤差。
	Leeway  time.Duration
	Metrics MetricsRecorder
	Logger  *slog.Logger
	// Now はテスト用の時刻源。nilの場合はtime.Now。
	Now func() time.Time
}

// Verifier はRS256署名トークンを検証する。
type Verifier struct {
	keys   *KeyCache
	config VerifierConfig
	parser *jwt.Parser
}

// idTokenClaims はトークン本体のJSON表現。
type idTokenClaims struct {
	Email    string `json:"email"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// NewVerifier は新しいVerifierを生成する。
func NewVerifier(keys *KeyCache, config VerifierConfig) *Verifier {
	if config.Metrics == nil {
		config.Metrics = noopRecorder{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithAudience(config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(config.Leeway),
		jwt.WithTimeFunc(config.Now),
	)

	return &Verifier{keys: keys, config: config, parser: parser}
}

// Verify はトークンを検証し、成功した場合はClaimsを返す。
//
// kidがKeyCacheに無い場合に限り、鍵セットを1回だけ再取得して再検証する。
// 失敗時は常に*AuthErrorを返す。
func (v *Verifier) Verify(ctx context.Context, credential string) (*Claims, error) {
	if credential == "" {
		return nil, v.fail(&AuthError{Reason: ReasonMalformed, Err: errors.New("empty credential")})
	}

	parsed, err := v.parse(credential)
	if errors.Is(err, ErrKeyNotFound) {
		if rerr := v.keys.Refresh(ctx); rerr != nil {
			v.config.Logger.Warn("key refresh on unknown kid failed",
				slog.String("error", rerr.Error()),
			)
		}
		parsed, err = v.parse(credential)
	}
	if err != nil {
		return nil, v.fail(&AuthError{Reason: classify(err), Err: err})
	}

	if parsed.Email == "" {
		return nil, v.fail(&AuthError{Reason: ReasonMissingIdentity, Err: errors.New("email claim is missing")})
	}
	if v.config.TokenUse != "" && parsed.TokenUse != v.config.TokenUse {
		return nil, v.fail(&AuthError{
			Reason: ReasonTokenUseMismatch,
			Err:    fmt.Errorf("token_use %q, want %q", parsed.TokenUse, v.config.TokenUse),
		})
	}

	claims := &Claims{
		Email:    parsed.Email,
		Subject:  parsed.Subject,
		Issuer:   parsed.Issuer,
		Audience: []string(parsed.Audience),
		TokenUse: parsed.TokenUse,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}

func (v *Verifier) parse(credential string) (*idTokenClaims, error) {
	claims := &idTokenClaims{}
	if _, err := v.parser.ParseWithClaims(credential, claims, v.keyFunc); err != nil {
		return nil, err
	}
	return claims, nil
}

// keyFunc はヘッダーのkidとalgから検証鍵を選ぶ。
func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errMissingKeyID
	}
	key, ok := v.keys.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("kid %q: %w", kid, ErrKeyNotFound)
	}
	if key.Algorithm != token.Method.Alg() {
		return nil, fmt.Errorf("kid %q is registered for %s, token uses %s: %w",
			kid, key.Algorithm, token.Method.Alg(), errAlgorithmMismatch)
	}
	return key.PublicKey, nil
}

var (
	errMissingKeyID      = errors.New("token header has no kid")
	errAlgorithmMismatch = errors.New("algorithm mismatch")
)

// classify はjwtパッケージのエラーを失敗理由に分類する。
func classify(err error) Reason {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return ReasonUnknownKey
	case errors.Is(err, errAlgorithmMismatch), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonAudienceMismatch
	default:
		return ReasonMalformed
	}
}

func (v *Verifier) fail(err *AuthError) error {
	v.config.Metrics.RecordAuthFailure(string(err.Reason))
	return err
}
