package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/stockfolio/internal/middleware"
	"github.com/hitoshi/stockfolio/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// 期限切れのリクエストはAPIError以外でもタイムアウトとして扱う
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		middleware.WriteErrorResponse(w, http.StatusGatewayTimeout, model.NewRequestTimeoutError())
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidSymbol, model.ErrCodeInvalidRequest, model.ErrCodeInvalidRange:
		return http.StatusBadRequest
	case model.ErrCodeSymbolNotFound, model.ErrCodeNoData:
		return http.StatusNotFound
	case model.ErrCodeProviderUnavailable:
		return http.StatusBadGateway
	case model.ErrCodeRequestTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// requireEmail は認証済みメールアドレスを返す。取得できない場合は401を書き込みfalseを返す。
func requireEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := middleware.EmailFromContext(r.Context())
	if !ok {
		middleware.WriteUnauthorized(w, false)
		return "", false
	}
	return email, true
}
