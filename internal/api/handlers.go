package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jinford/rag-agent/internal/core/ask"
)

// handler は各エンドポイントの実装を束ねる
type handler struct {
	ask       AskService
	reindexer Reindexer
	version   string
	logger    *slog.Logger
}

// healthResponse はヘルスチェックのレスポンス
type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	})
}

// askRequest は質問応答リクエストのボディ
type askRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// askResponse は質問応答のレスポンス
type askResponse struct {
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	QueryType string    `json:"query_type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *handler) askQuestion(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.ask.Ask(r.Context(), ask.AskParams{
		Query:     req.Query,
		SessionID: req.SessionID,
	})
	if err != nil {
		h.logger.Error("ask failed", slog.String("error", err.Error()))
		writeCoreError(w, err)
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:    result.Answer,
		Sources:   sources,
		QueryType: string(result.QueryType),
		SessionID: result.SessionID,
		Timestamp: result.Timestamp,
	})
}

// reindexRequest はインデックス再構築リクエストのボディ。
// sources が空の場合は設定済みのデフォルトソースを対象にする。
type reindexRequest struct {
	Sources []string `json:"sources"`
}

// reindexResponse はインデックス再構築のレスポンス
type reindexResponse struct {
	Status          string `json:"status"`
	DocumentsLoaded int    `json:"documents_loaded"`
	ChunksIndexed   int    `json:"chunks_indexed"`
}

func (h *handler) reindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	// ボディは省略可能
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	result, err := h.reindexer.Reindex(r.Context(), req.Sources)
	if err != nil {
		h.logger.Error("reindex failed", slog.String("error", err.Error()))
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reindexResponse{
		Status:          "success",
		DocumentsLoaded: result.DocumentsLoaded,
		ChunksIndexed:   result.ChunksIndexed,
	})
}

// historyMessage は履歴レスポンス内の1ターン
type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// historyResponse は会話履歴のレスポンス
type historyResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []historyMessage `json:"messages"`
}

func (h *handler) sessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	messages, err := h.ask.SessionHistory(r.Context(), sessionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	resp := historyResponse{
		SessionID: sessionID,
		Messages:  make([]historyMessage, 0, len(messages)),
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, historyMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// clearSessionResponse はセッション削除のレスポンス
type clearSessionResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

func (h *handler) clearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	found, err := h.ask.ClearSession(r.Context(), sessionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session not found", sessionID)
		return
	}

	writeJSON(w, http.StatusOK, clearSessionResponse{
		Status:    "cleared",
		SessionID: sessionID,
	})
}
