package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/stockfolio/internal/model"
)

// ErrorResponseBody は全エンドポイント共通のエラーレスポンス形式。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIErrorをJSONで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// bearerRealm はWWW-Authenticateヘッダーで通知する保護領域名。
const bearerRealm = "stockfolio"

// WriteUnauthorized はRFC 6750形式のWWW-Authenticateヘッダーを付けて401を書き込む。
// invalidTokenがtrueの場合はトークンが提示されたが受理できなかったことを示す。
// 失敗理由の詳細はクライアントに返さない。
func WriteUnauthorized(w http.ResponseWriter, invalidToken bool) {
	challenge := `Bearer realm="` + bearerRealm + `"`
	if invalidToken {
		challenge += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
