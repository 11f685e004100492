package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/rag-agent/internal/core/document"
	coreindex "github.com/jinford/rag-agent/internal/core/index"
	"github.com/jinford/rag-agent/internal/core/ingest"
	"github.com/jinford/rag-agent/internal/core/retrieve"
)

// Index は pgvector を使用したベクトルインデックス実装。
// インメモリ実装と同じ契約を提供し、プロセスをまたいだ永続性が必要な
// 場合に差し替えて使用する。
type Index struct {
	db        *DB
	dimension int
	logger    *slog.Logger
}

// IndexOption は Index のオプション設定
type IndexOption func(*Index)

// WithIndexLogger は Index にロガーを設定する
func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(idx *Index) {
		idx.logger = logger
	}
}

// NewIndex は新しい Index を作成し、テーブルが存在しなければ作成する
func NewIndex(ctx context.Context, db *DB, dimension int, opts ...IndexOption) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}

	idx := &Index{
		db:        db,
		dimension: dimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}

	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

func (idx *Index) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS document_chunks (
			id BIGSERIAL PRIMARY KEY,
			document_name TEXT NOT NULL,
			ordinal INT NOT NULL,
			content TEXT NOT NULL,
			tokens INT NOT NULL DEFAULT 0,
			embedding vector(%d) NOT NULL
		)`, idx.dimension)

	if _, err := idx.db.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	return nil
}

// Rebuild はインデックス全体をトランザクション内で置き換える。
// コミットまで既存データが見えるため、並行する Search は常に完全な
// 新旧いずれかの状態のみを観測する。
func (idx *Index) Rebuild(ctx context.Context, chunks []document.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != idx.dimension {
			return fmt.Errorf("%w: chunk %s has dimension %d, want %d",
				coreindex.ErrDimensionMismatch, c.ID(), len(c.Embedding), idx.dimension)
		}
	}

	tx, err := idx.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM document_chunks"); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(
				"INSERT INTO document_chunks (document_name, ordinal, content, tokens, embedding) VALUES ($1, $2, $3, $4, $5)",
				c.DocumentName, c.Ordinal, c.Content, c.Tokens, pgvector.NewVector(c.Embedding),
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range chunks {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rebuild: %w", err)
	}

	idx.logger.Info("rebuilt pgvector index", slog.Int("chunks", len(chunks)))
	return nil
}

// Search はコサイン類似度の降順でチャンクを返す。
// 同スコアは挿入順（id昇順）で安定に並ぶ。
func (idx *Index) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]document.SearchResult, error) {
	if len(queryEmbedding) != idx.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d",
			coreindex.ErrDimensionMismatch, len(queryEmbedding), idx.dimension)
	}
	if topK <= 0 {
		return []document.SearchResult{}, nil
	}

	rows, err := idx.db.Pool.Query(ctx, `
		SELECT document_name, ordinal, content, tokens, 1 - (embedding <=> $1) AS score
		FROM document_chunks
		ORDER BY embedding <=> $1, id
		LIMIT $2`,
		pgvector.NewVector(queryEmbedding), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	results := make([]document.SearchResult, 0, topK)
	for rows.Next() {
		var r document.SearchResult
		if err := rows.Scan(&r.Chunk.DocumentName, &r.Chunk.Ordinal, &r.Chunk.Content, &r.Chunk.Tokens, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	return results, nil
}

// IsEmpty はインデックスが空かどうかを返す
func (idx *Index) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	err := idx.db.Pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM document_chunks)").Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check index state: %w", err)
	}
	return !exists, nil
}

// Dimension はベクトル次元数を返す
func (idx *Index) Dimension() int {
	return idx.dimension
}

// インターフェース実装の確認
var (
	_ retrieve.Index = (*Index)(nil)
	_ ingest.Index   = (*Index)(nil)
)
