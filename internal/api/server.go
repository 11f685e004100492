// Package api はRAGエージェントのHTTP APIを提供する。
//
// エンドポイント:
//
//	GET    /health                      生存確認
//	POST   /api/ask                     質問応答
//	POST   /api/reindex                 インデックス再構築
//	GET    /api/sessions/{id}/history   会話履歴の取得
//	DELETE /api/sessions/{id}           セッションの削除
//
// コア層のエラーはこの層でHTTPステータスに変換する。コア層はHTTPを知らない。
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jinford/rag-agent/internal/core/ask"
	"github.com/jinford/rag-agent/internal/core/ingest"
	"github.com/jinford/rag-agent/internal/core/session"
)

const (
	// DefaultAddr はHTTPサーバーのデフォルトのリッスンアドレス
	DefaultAddr = ":8000"

	// shutdownTimeout はグレースフルシャットダウンの最大待機時間
	shutdownTimeout = 10 * time.Second

	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	// 回答生成はLLM呼び出しを挟むため書き込みタイムアウトは長めに取る
	writeTimeout = 120 * time.Second
	idleTimeout  = 120 * time.Second
)

// AskService は質問応答とセッション操作のユースケースを表す
type AskService interface {
	Ask(ctx context.Context, params ask.AskParams) (*ask.AskResult, error)
	ClearSession(ctx context.Context, sessionID string) (bool, error)
	SessionHistory(ctx context.Context, sessionID string) ([]session.Message, error)
}

// Reindexer はインデックス再構築のユースケースを表す。
// sources が空の場合は設定済みのデフォルトソースを使う。
type Reindexer interface {
	Reindex(ctx context.Context, sources []string) (*ingest.ReindexResult, error)
}

// Server はHTTP APIサーバー
type Server struct {
	mux     *http.ServeMux
	limiter *rateLimiter
	version string
	logger  *slog.Logger
}

type serverOption func(*Server)

// WithServerLogger はサーバーが使うロガーを設定する
func WithServerLogger(logger *slog.Logger) serverOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion はヘルスチェックで返すバージョン文字列を設定する
func WithVersion(version string) serverOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithRateLimit はクライアントIPごとのレート制限を設定する。
// rps はトークン補充レート、burst は瞬間的に許容するリクエスト数。
func WithRateLimit(rps float64, burst int) serverOption {
	return func(s *Server) {
		s.limiter = newRateLimiter(rps, burst)
	}
}

// NewServer は全ルートを登録したHTTP APIサーバーを生成する
func NewServer(askSvc AskService, reindexer Reindexer, opts ...serverOption) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		version: "dev",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	h := &handler{ask: askSvc, reindexer: reindexer, version: s.version, logger: s.logger}
	s.mux.HandleFunc("GET /health", h.health)
	s.mux.HandleFunc("POST /api/ask", h.askQuestion)
	s.mux.HandleFunc("POST /api/reindex", h.reindex)
	s.mux.HandleFunc("GET /api/sessions/{id}/history", h.sessionHistory)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", h.clearSession)

	return s
}

// Handler はミドルウェア適用済みのHTTPハンドラを返す。
// 適用順序: recovery → logging → rate limit → ルーティング
func (s *Server) Handler() http.Handler {
	var hdl http.Handler = s.mux
	if s.limiter != nil {
		hdl = s.limiter.middleware(hdl)
	}
	return chain(hdl,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run はHTTPサーバーを起動し、コンテキストがキャンセルされるまでブロックする。
// キャンセル時はグレースフルシャットダウンを行う。
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
