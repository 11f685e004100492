package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"github.com/jinford/rag-agent/internal/core/document"
)

var (
	// ErrDimensionMismatch はベクトル次元が設定と一致しない場合のエラー
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Index はチャンクとその埋め込みベクトルを保持するインメモリのベクトルインデックス。
// 検索は読み取り専用のスナップショットに対して行われ、Rebuild はスナップショット全体を
// 単一の参照の差し替えで置き換えるため、読み取り側は常に完全な新旧いずれかの
// インデックスのみを観測する。複数ゴルーチンから安全に利用できる。
type Index struct {
	dimension int
	logger    *slog.Logger
	snap      atomic.Pointer[indexSnapshot]
}

// indexSnapshot は不変の検索対象データ一式
type indexSnapshot struct {
	chunks []document.Chunk
	norms  []float64
}

// Option は Index のオプション設定
type Option func(*Index)

// WithLogger は Index にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) {
		idx.logger = logger
	}
}

// New は指定された埋め込み次元の空のインデックスを作成する
func New(dimension int, opts ...Option) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}

	idx := &Index{
		dimension: dimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}

	idx.snap.Store(&indexSnapshot{})
	return idx, nil
}

// Rebuild はインデックス全体をゼロから再構築する。
// 差し替え用の構造を脇で構築してから参照を1回だけ入れ替えるため、
// 並行する Search から見て再構築は原子的に完了する。
// チャンク0件での呼び出しは有効な空インデックスを生成する。
func (idx *Index) Rebuild(_ context.Context, chunks []document.Chunk) error {
	next := &indexSnapshot{
		chunks: make([]document.Chunk, 0, len(chunks)),
		norms:  make([]float64, 0, len(chunks)),
	}

	for _, chunk := range chunks {
		if len(chunk.Embedding) != idx.dimension {
			return fmt.Errorf("%w: chunk %s has dimension %d, index expects %d",
				ErrDimensionMismatch, chunk.ID(), len(chunk.Embedding), idx.dimension)
		}
		next.chunks = append(next.chunks, chunk)
		next.norms = append(next.norms, vectorNorm(chunk.Embedding))
	}

	idx.snap.Store(next)
	idx.logger.Debug("index rebuilt", "chunks", len(next.chunks), "dimension", idx.dimension)
	return nil
}

// Search はクエリベクトルとのコサイン類似度で上位 topK 件を返す。
// 結果はスコア降順、同点は登録順（連番の小さい順）。
// 空のインデックスに対しては空のスライスを返し、エラーにはしない。
func (idx *Index) Search(_ context.Context, queryEmbedding []float32, topK int) ([]document.SearchResult, error) {
	if len(queryEmbedding) != idx.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(queryEmbedding), idx.dimension)
	}

	snap := idx.snap.Load()
	if len(snap.chunks) == 0 || topK <= 0 {
		return []document.SearchResult{}, nil
	}

	queryNorm := vectorNorm(queryEmbedding)

	results := make([]document.SearchResult, 0, len(snap.chunks))
	for i, chunk := range snap.chunks {
		results = append(results, document.SearchResult{
			Chunk: chunk,
			Score: cosineSimilarity(queryEmbedding, chunk.Embedding, queryNorm, snap.norms[i]),
		})
	}

	// 安定ソートにより同点スコアは登録順を維持する
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Size は登録済みチャンク数を返す
func (idx *Index) Size() int {
	return len(idx.snap.Load().chunks)
}

// IsEmpty はインデックスが空かどうかを返す
func (idx *Index) IsEmpty(_ context.Context) (bool, error) {
	return idx.Size() == 0, nil
}

// Dimension は設定された埋め込み次元を返す
func (idx *Index) Dimension() int {
	return idx.dimension
}

// chunksCopy は現在のスナップショットのチャンクのコピーを返す（永続化用）
func (idx *Index) chunksCopy() []document.Chunk {
	snap := idx.snap.Load()
	chunks := make([]document.Chunk, len(snap.chunks))
	copy(chunks, snap.chunks)
	return chunks
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
