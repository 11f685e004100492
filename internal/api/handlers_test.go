package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/rag-agent/internal/core/ask"
	"github.com/jinford/rag-agent/internal/core/ingest"
	"github.com/jinford/rag-agent/internal/core/router"
	"github.com/jinford/rag-agent/internal/core/session"
	"github.com/jinford/rag-agent/internal/infra/openai"
)

type stubAskService struct {
	askResult  *ask.AskResult
	askErr     error
	history    []session.Message
	historyErr error
	cleared    bool
	clearErr   error
}

func (s *stubAskService) Ask(_ context.Context, _ ask.AskParams) (*ask.AskResult, error) {
	if s.askErr != nil {
		return nil, s.askErr
	}
	return s.askResult, nil
}

func (s *stubAskService) ClearSession(_ context.Context, _ string) (bool, error) {
	return s.cleared, s.clearErr
}

func (s *stubAskService) SessionHistory(_ context.Context, _ string) ([]session.Message, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.history, nil
}

type stubReindexer struct {
	result      *ingest.ReindexResult
	err         error
	lastSources []string
}

func (s *stubReindexer) Reindex(_ context.Context, sources []string) (*ingest.ReindexResult, error) {
	s.lastSources = sources
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestServer(askSvc AskService, reindexer Reindexer) http.Handler {
	return NewServer(askSvc, reindexer).Handler()
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("healthyとバージョンを返す", func(t *testing.T) {
		hdl := NewServer(&stubAskService{}, &stubReindexer{}, WithVersion("1.2.3")).Handler()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp healthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "1.2.3", resp.Version)
		assert.False(t, resp.Timestamp.IsZero())
	})
}

func TestAskEndpoint(t *testing.T) {
	t.Run("質問に回答を返す", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		askSvc := &stubAskService{
			askResult: &ask.AskResult{
				Answer:    "Goは静的型付け言語です。",
				Sources:   []string{"guide.md"},
				QueryType: router.QueryTypeRetrieval,
				SessionID: "sess-1",
				Timestamp: now,
			},
		}
		hdl := newTestServer(askSvc, &stubReindexer{})

		body := `{"query": "Goとは何ですか", "session_id": "sess-1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body))
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp askResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Goは静的型付け言語です。", resp.Answer)
		assert.Equal(t, []string{"guide.md"}, resp.Sources)
		assert.Equal(t, "retrieval", resp.QueryType)
		assert.Equal(t, "sess-1", resp.SessionID)
		assert.Equal(t, now, resp.Timestamp)
	})

	t.Run("sourcesがnilでも空配列として返す", func(t *testing.T) {
		askSvc := &stubAskService{
			askResult: &ask.AskResult{
				Answer:    "こんにちは",
				QueryType: router.QueryTypeDirect,
				SessionID: "sess-2",
			},
		}
		hdl := newTestServer(askSvc, &stubReindexer{})

		req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query": "hi"}`))
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"sources":[]`)
	})

	t.Run("不正なJSONボディは400", func(t *testing.T) {
		hdl := newTestServer(&stubAskService{}, &stubReindexer{})
		req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{invalid`))
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("入力バリデーションエラーは400", func(t *testing.T) {
		askSvc := &stubAskService{askErr: fmt.Errorf("query must not be empty: %w", ask.ErrInvalidInput)}
		hdl := newTestServer(askSvc, &stubReindexer{})
		req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query": ""}`))
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("プロバイダ障害は503", func(t *testing.T) {
		askSvc := &stubAskService{askErr: fmt.Errorf("generate: %w", openai.ErrProviderUnavailable)}
		hdl := newTestServer(askSvc, &stubReindexer{})
		req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query": "q"}`))
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("想定外のエラーは500", func(t *testing.T) {
		askSvc := &stubAskService{askErr: errors.New("boom")}
		hdl := newTestServer(askSvc, &stubReindexer{})
		req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query": "q"}`))
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestReindexEndpoint(t *testing.T) {
	t.Run("再構築結果を返す", func(t *testing.T) {
		reindexer := &stubReindexer{result: &ingest.ReindexResult{DocumentsLoaded: 3, ChunksIndexed: 12}}
		hdl := newTestServer(&stubAskService{}, reindexer)

		req := httptest.NewRequest(http.MethodPost, "/api/reindex", nil)
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp reindexResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "success", resp.Status)
		assert.Equal(t, 3, resp.DocumentsLoaded)
		assert.Equal(t, 12, resp.ChunksIndexed)
		assert.Empty(t, reindexer.lastSources)
	})

	t.Run("ボディで指定したソースを渡す", func(t *testing.T) {
		reindexer := &stubReindexer{result: &ingest.ReindexResult{}}
		hdl := newTestServer(&stubAskService{}, reindexer)

		body := `{"sources": ["docs", "https://example.com/repo.git"]}`
		req := httptest.NewRequest(http.MethodPost, "/api/reindex", strings.NewReader(body))
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"docs", "https://example.com/repo.git"}, reindexer.lastSources)
	})

	t.Run("再構築の失敗は500", func(t *testing.T) {
		reindexer := &stubReindexer{err: errors.New("embed failed")}
		hdl := newTestServer(&stubAskService{}, reindexer)

		req := httptest.NewRequest(http.MethodPost, "/api/reindex", nil)
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestSessionHistoryEndpoint(t *testing.T) {
	t.Run("履歴を順序どおり返す", func(t *testing.T) {
		ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		askSvc := &stubAskService{
			history: []session.Message{
				{Role: session.RoleUser, Content: "質問", Timestamp: ts},
				{Role: session.RoleAssistant, Content: "回答", Timestamp: ts.Add(time.Second)},
			},
		}
		hdl := newTestServer(askSvc, &stubReindexer{})

		req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1/history", nil)
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp historyResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "sess-1", resp.SessionID)
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, "user", resp.Messages[0].Role)
		assert.Equal(t, "質問", resp.Messages[0].Content)
		assert.Equal(t, "assistant", resp.Messages[1].Role)
	})

	t.Run("未知のセッションは404", func(t *testing.T) {
		askSvc := &stubAskService{historyErr: session.ErrSessionNotFound}
		hdl := newTestServer(askSvc, &stubReindexer{})

		req := httptest.NewRequest(http.MethodGet, "/api/sessions/unknown/history", nil)
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestClearSessionEndpoint(t *testing.T) {
	t.Run("既存のセッションを削除する", func(t *testing.T) {
		askSvc := &stubAskService{cleared: true}
		hdl := newTestServer(askSvc, &stubReindexer{})

		req := httptest.NewRequest(http.MethodDelete, "/api/sessions/sess-1", nil)
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp clearSessionResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "cleared", resp.Status)
		assert.Equal(t, "sess-1", resp.SessionID)
	})

	t.Run("未知のセッションは404", func(t *testing.T) {
		askSvc := &stubAskService{cleared: false}
		hdl := newTestServer(askSvc, &stubReindexer{})

		req := httptest.NewRequest(http.MethodDelete, "/api/sessions/unknown", nil)
		w := httptest.NewRecorder()

		hdl.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
