package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/rag-agent/internal/core/document"
)

// SourceProvider はインデックス対象のドキュメント供給インターフェース
type SourceProvider interface {
	// Name は供給元の識別名を返す（ログ用）
	Name() string

	// Fetch はインデックス対象のドキュメント一覧を返す
	Fetch(ctx context.Context) ([]document.Document, error)
}

// Chunker はドキュメント分割のインターフェース
type Chunker interface {
	// Chunk はドキュメントを文境界を尊重したチャンク列に分割する
	Chunk(documentName, text string) []document.Chunk
}

// BatchEmbedder は複数テキストのEmbedding一括生成インターフェース
type BatchEmbedder interface {
	// BatchEmbed は texts と同じ順序・件数のEmbedding列を返す
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index はインデックス再構築のインターフェース
type Index interface {
	// Rebuild はインデックス全体をチャンク列から再構築する
	Rebuild(ctx context.Context, chunks []document.Chunk) error
}

// PersistFunc は再構築後のインデックス永続化処理
type PersistFunc func(ctx context.Context) error

// ReindexResult は再インデックスの結果を表す
type ReindexResult struct {
	DocumentsLoaded int // 読み込んだドキュメント数
	ChunksIndexed   int // インデックスしたチャンク数
}

// IngestService はドキュメントの取得からインデックス再構築までを提供する
type IngestService struct {
	chunker  Chunker
	embedder BatchEmbedder
	index    Index
	persist  PersistFunc
	logger   *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*IngestService)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(s *IngestService) {
		s.logger = logger
	}
}

// WithPersist は再構築成功後に呼び出す永続化処理を設定する
func WithPersist(persist PersistFunc) IngestServiceOption {
	return func(s *IngestService) {
		s.persist = persist
	}
}

// NewIngestService は新しいIngestServiceを作成する
func NewIngestService(
	chunker Chunker,
	embedder BatchEmbedder,
	index Index,
	opts ...IngestServiceOption,
) *IngestService {
	svc := &IngestService{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Reindex は全ドキュメントを取得し直してインデックスをゼロから再構築する。
// 増分更新は行わない。ドキュメントが1件もない場合は有効な空インデックスを
// 構築する。永続化処理が設定されていれば再構築成功後に実行する。
func (s *IngestService) Reindex(ctx context.Context, providers []SourceProvider) (*ReindexResult, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one source provider is required")
	}

	// 1. 全ソースからドキュメントを収集
	var docs []document.Document
	for _, p := range providers {
		fetched, err := p.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch documents from %s: %w", p.Name(), err)
		}
		s.logger.Info("fetched documents",
			slog.String("source", p.Name()),
			slog.Int("documents", len(fetched)),
		)
		docs = append(docs, fetched...)
	}

	// 2. チャンク分割
	var chunks []document.Chunk
	for _, doc := range docs {
		chunks = append(chunks, s.chunker.Chunk(doc.Name, doc.Content)...)
	}

	s.logger.Info("chunked documents",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
	)

	// 3. Embedding生成
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}

		embeddings, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(embeddings) != len(chunks) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(chunks))
		}

		for i := range chunks {
			chunks[i].Embedding = embeddings[i]
		}
	}

	// 4. インデックス再構築
	if err := s.index.Rebuild(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	// 5. スナップショット永続化
	if s.persist != nil {
		if err := s.persist(ctx); err != nil {
			// インデックス自体は再構築済みなので失敗は警告に留める
			s.logger.Warn("failed to persist index snapshot",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("reindex completed",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
	)

	return &ReindexResult{
		DocumentsLoaded: len(docs),
		ChunksIndexed:   len(chunks),
	}, nil
}
