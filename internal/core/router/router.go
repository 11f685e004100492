package router

import (
	"context"
	"log/slog"

	"github.com/jinford/rag-agent/internal/core/session"
)

// QueryType はクエリの処理方式を表す
type QueryType string

const (
	// QueryTypeDirect はドキュメント検索なしで直接回答する方式
	QueryTypeDirect QueryType = "direct"

	// QueryTypeRetrieval はドキュメント検索の結果を用いて回答する方式
	QueryTypeRetrieval QueryType = "retrieval"
)

// Classification はクエリ分類の結果を表す
type Classification struct {
	Type QueryType

	// SearchQuery は Type が retrieval の場合に使用する検索クエリ
	SearchQuery string

	// Rationale は診断用の判定理由。制御には使用しない。
	Rationale string
}

// Decision はLLMのツール呼び出し判定の生の結果を表す
type Decision struct {
	// UseSearch はモデルが検索ツールの呼び出しを選択したかどうか
	UseSearch bool

	// SearchQuery はツール呼び出しの引数として渡された検索クエリ
	SearchQuery string

	// Rationale はツール呼び出しと併せて返された本文テキスト
	Rationale string
}

// Classifier は検索要否の判定を行うLLM呼び出しのインターフェース
type Classifier interface {
	// ClassifySearchNeed はクエリと会話履歴を提示し、検索ツールを
	// 呼び出すべきかのモデル判断を返す
	ClassifySearchNeed(ctx context.Context, query string, history []session.Message) (*Decision, error)
}

// Router はクエリごとに検索の要否を判定する
type Router struct {
	classifier Classifier
	logger     *slog.Logger
}

// Option は Router のオプション設定
type Option func(*Router)

// WithLogger は Router にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter は新しいRouterを作成する
func NewRouter(classifier Classifier, opts ...Option) *Router {
	r := &Router{
		classifier: classifier,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Route はクエリを direct / retrieval のいずれかに分類する。
// 分類呼び出しの失敗や曖昧な応答は direct に縮退し、エラーは返さない。
// リクエストの処理を分類の失敗で止めないための方針であり、縮退時は
// 警告ログのみ残す。
func (r *Router) Route(ctx context.Context, query string, history []session.Message) Classification {
	decision, err := r.classifier.ClassifySearchNeed(ctx, query, history)
	if err != nil {
		r.logger.Warn("query classification failed, falling back to direct answer",
			slog.String("error", err.Error()),
		)
		return Classification{Type: QueryTypeDirect}
	}
	if decision == nil || !decision.UseSearch {
		r.logger.Debug("query classified as direct")
		rationale := ""
		if decision != nil {
			rationale = decision.Rationale
		}
		return Classification{Type: QueryTypeDirect, Rationale: rationale}
	}

	searchQuery := decision.SearchQuery
	if searchQuery == "" {
		// ツール引数が空でも元のクエリで検索を続行する
		searchQuery = query
	}

	r.logger.Debug("query classified as retrieval",
		slog.String("searchQuery", searchQuery),
	)

	return Classification{
		Type:        QueryTypeRetrieval,
		SearchQuery: searchQuery,
		Rationale:   decision.Rationale,
	}
}
