package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jinford/rag-agent/internal/core/ask"
	"github.com/jinford/rag-agent/internal/core/session"
	"github.com/jinford/rag-agent/internal/infra/openai"
)

// errorResponse はJSON形式のエラーレスポンス
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON はJSONレスポンスを書き込む。
// WriteHeader後のエンコード失敗はクライアントに通知できないためログに残すのみ。
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError はJSON形式のエラーレスポンスを書き込む
func writeError(w http.ResponseWriter, status int, errMsg string, message string) {
	writeJSON(w, status, errorResponse{Error: errMsg, Message: message})
}

// writeCoreError はコア層の型付きエラーをHTTPステータスに変換して書き込む
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ask.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input", err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", err.Error())
	case errors.Is(err, openai.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "provider unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error", err.Error())
	}
}
