package retrieve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/rag-agent/internal/core/document"
)

// Embedder はクエリテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index はベクトル検索のインターフェース
type Index interface {
	// Search はクエリベクトルに類似するチャンクをスコア降順で返す
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]document.SearchResult, error)

	// IsEmpty はインデックスが空かどうかを返す
	IsEmpty(ctx context.Context) (bool, error)
}

const (
	// DefaultTopK はデフォルトの取得件数
	DefaultTopK = 3

	// DefaultScoreThreshold はデフォルトの類似度スコア閾値
	DefaultScoreThreshold = 0.7

	// DefaultMaxPerDocument は同一ドキュメントからの最大採用チャンク数のデフォルト
	DefaultMaxPerDocument = 2
)

// Config は検索パラメータを表す
type Config struct {
	// TopK は返却する最大チャンク数
	TopK int

	// ScoreThreshold はこの値未満のスコアの結果を除外する閾値
	ScoreThreshold float64

	// MaxPerDocument は同一ドキュメントから採用するチャンク数の上限。
	// 0以下の場合は上限なし。
	MaxPerDocument int
}

// DefaultConfig はデフォルトの検索パラメータを返す
func DefaultConfig() Config {
	return Config{
		TopK:           DefaultTopK,
		ScoreThreshold: DefaultScoreThreshold,
		MaxPerDocument: DefaultMaxPerDocument,
	}
}

// Retriever はクエリのEmbedding生成とベクトル検索を組み合わせた検索サービス
type Retriever struct {
	index    Index
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
}

// Option は Retriever のオプション設定
type Option func(*Retriever)

// WithLogger は Retriever にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever は新しいRetrieverを作成する
func NewRetriever(index Index, embedder Embedder, cfg Config, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.ScoreThreshold < 0 || cfg.ScoreThreshold > 1 {
		return nil, fmt.Errorf("score threshold must be in [0, 1], got %g", cfg.ScoreThreshold)
	}

	r := &Retriever{
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	return r, nil
}

// Retrieve はクエリに関連するチャンクをスコア付きで返す。
// 閾値未満の結果は除外され、同一ドキュメントからの採用数は MaxPerDocument で
// 制限される。インデックスが空の場合、および全件が閾値未満の場合は
// 空のスライスを返す（エラーにはしない）。
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]document.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	empty, err := r.index.IsEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check index state: %w", err)
	}
	if empty {
		r.logger.Warn("search index is empty, returning no results")
		return []document.SearchResult{}, nil
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// ドキュメント単位の上限で間引いても TopK 件を確保できるよう多めに取得する
	fetch := r.cfg.TopK
	if r.cfg.MaxPerDocument > 0 {
		fetch = r.cfg.TopK * r.cfg.MaxPerDocument
	}

	candidates, err := r.index.Search(ctx, queryVector, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := r.selectResults(candidates)

	r.logger.Debug("retrieval completed",
		slog.Int("candidates", len(candidates)),
		slog.Int("selected", len(results)),
	)

	return results, nil
}

// selectResults は閾値フィルタとドキュメント単位の上限を candidates に適用する。
// candidates のスコア降順を保ったまま先頭から採用していく。
func (r *Retriever) selectResults(candidates []document.SearchResult) []document.SearchResult {
	results := make([]document.SearchResult, 0, r.cfg.TopK)
	perDoc := make(map[string]int)

	for _, c := range candidates {
		if c.Score < r.cfg.ScoreThreshold {
			// スコア降順なので以降はすべて閾値未満
			break
		}
		if r.cfg.MaxPerDocument > 0 && perDoc[c.Chunk.DocumentName] >= r.cfg.MaxPerDocument {
			continue
		}
		perDoc[c.Chunk.DocumentName]++
		results = append(results, c)
		if len(results) >= r.cfg.TopK {
			break
		}
	}

	return results
}
