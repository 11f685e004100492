package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jinford/rag-agent/internal/core/answer"
	"github.com/jinford/rag-agent/internal/core/document"
	"github.com/jinford/rag-agent/internal/core/router"
	"github.com/jinford/rag-agent/internal/core/session"
)

var (
	// ErrInvalidInput は質問応答の入力が不正な場合のエラー
	ErrInvalidInput = errors.New("invalid input")
)

// maxQueryLength はクエリの最大文字数
const maxQueryLength = 2000

// Router はクエリ分類のインターフェース
type Router interface {
	// Route はクエリを direct / retrieval に分類する
	Route(ctx context.Context, query string, history []session.Message) router.Classification
}

// Retriever は関連チャンク検索のインターフェース
type Retriever interface {
	// Retrieve はクエリに関連するチャンクをスコア付きで返す
	Retrieve(ctx context.Context, query string) ([]document.SearchResult, error)
}

// Composer は回答合成のインターフェース
type Composer interface {
	// ComposeDirect は検索なしで直接回答を生成する
	ComposeDirect(ctx context.Context, query string, history []session.Message) (*answer.Result, error)

	// ComposeWithContext は検索されたチャンクを文脈として回答を生成する
	ComposeWithContext(ctx context.Context, query string, history []session.Message, results []document.SearchResult) (*answer.Result, error)
}

// AskService は質問応答パイプライン全体のオーケストレーションを提供する
type AskService struct {
	router    Router
	retriever Retriever
	composer  Composer
	sessions  session.Store
	logger    *slog.Logger
	now       func() time.Time
}

// AskServiceOption は AskService のオプション設定
type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// withNow はテスト用に現在時刻の取得関数を差し替える
func withNow(now func() time.Time) AskServiceOption {
	return func(s *AskService) {
		s.now = now
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	rt Router,
	retriever Retriever,
	composer Composer,
	sessions session.Store,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		router:    rt,
		retriever: retriever,
		composer:  composer,
		sessions:  sessions,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask は質問に対する回答を生成する。
// セッションの会話履歴を用いてクエリを分類し、必要に応じてドキュメント検索を
// 行ったうえで回答を合成する。成功時はユーザーの質問と生成した回答を
// 2ターンとしてセッション履歴に追記する。
func (s *AskService) Ask(ctx context.Context, params AskParams) (*AskResult, error) {
	// 1. バリデーション
	if params.Query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(params.Query) > maxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", ErrInvalidInput, maxQueryLength)
	}

	// 2. セッションの取得または作成
	sessionID, err := s.sessions.GetOrCreate(ctx, params.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create session: %w", err)
	}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}

	// 3. クエリ分類
	classification := s.router.Route(ctx, params.Query, history)

	s.logger.Info("query classified",
		slog.String("sessionID", sessionID),
		slog.String("queryType", string(classification.Type)),
	)

	// 4. 分類に応じて回答を合成
	var result *answer.Result
	if classification.Type == router.QueryTypeRetrieval {
		results, err := s.retriever.Retrieve(ctx, classification.SearchQuery)
		if err != nil {
			return nil, fmt.Errorf("retrieval failed: %w", err)
		}

		result, err = s.composer.ComposeWithContext(ctx, params.Query, history, results)
		if err != nil {
			return nil, fmt.Errorf("failed to compose answer: %w", err)
		}
	} else {
		result, err = s.composer.ComposeDirect(ctx, params.Query, history)
		if err != nil {
			return nil, fmt.Errorf("failed to compose answer: %w", err)
		}
	}

	// 5. 会話履歴の更新
	now := s.now()
	userTurn := session.Message{Role: session.RoleUser, Content: params.Query, Timestamp: now}
	assistantTurn := session.Message{Role: session.RoleAssistant, Content: result.Answer, Timestamp: now}
	if err := s.sessions.Append(ctx, sessionID, userTurn); err != nil {
		return nil, fmt.Errorf("failed to append user turn: %w", err)
	}
	if err := s.sessions.Append(ctx, sessionID, assistantTurn); err != nil {
		return nil, fmt.Errorf("failed to append assistant turn: %w", err)
	}

	s.logger.Info("ask completed",
		slog.String("sessionID", sessionID),
		slog.String("queryType", string(result.QueryType)),
		slog.Int("sources", len(result.Sources)),
	)

	return &AskResult{
		Answer:    result.Answer,
		Sources:   result.Sources,
		QueryType: result.QueryType,
		SessionID: sessionID,
		Timestamp: now,
	}, nil
}

// ClearSession はセッションを削除する。
// セッションが存在した場合は true を返す。
func (s *AskService) ClearSession(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	found, err := s.sessions.Clear(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to clear session: %w", err)
	}

	s.logger.Info("session cleared",
		slog.String("sessionID", sessionID),
		slog.Bool("found", found),
	)

	return found, nil
}

// SessionHistory はセッションの会話履歴を返す
func (s *AskService) SessionHistory(ctx context.Context, sessionID string) ([]session.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionID is required", ErrInvalidInput)
	}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return history, nil
}
