package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/rag-agent/internal/core/document"
)

type stubEmbedder struct {
	vector []float32
	err    error
	called bool
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.called = true
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

type stubIndex struct {
	results   []document.SearchResult
	empty     bool
	searchErr error
	lastTopK  int
}

func (i *stubIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]document.SearchResult, error) {
	i.lastTopK = topK
	if i.searchErr != nil {
		return nil, i.searchErr
	}
	if len(i.results) <= topK {
		return i.results, nil
	}
	return i.results[:topK], nil
}

func (i *stubIndex) IsEmpty(ctx context.Context) (bool, error) {
	return i.empty, nil
}

func result(doc string, ordinal int, score float64) document.SearchResult {
	return document.SearchResult{
		Chunk: document.Chunk{
			DocumentName: doc,
			Ordinal:      ordinal,
			Content:      "content",
		},
		Score: score,
	}
}

func TestNewRetriever(t *testing.T) {
	t.Run("indexは必須", func(t *testing.T) {
		_, err := NewRetriever(nil, &stubEmbedder{}, DefaultConfig())
		assert.Error(t, err)
	})

	t.Run("embedderは必須", func(t *testing.T) {
		_, err := NewRetriever(&stubIndex{}, nil, DefaultConfig())
		assert.Error(t, err)
	})

	t.Run("範囲外の閾値はエラー", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ScoreThreshold = 1.5
		_, err := NewRetriever(&stubIndex{}, &stubEmbedder{}, cfg)
		assert.Error(t, err)
	})
}

func TestRetrieve_ThresholdFilter(t *testing.T) {
	index := &stubIndex{
		results: []document.SearchResult{
			result("a.txt", 0, 0.95),
			result("b.txt", 0, 0.80),
			result("c.txt", 0, 0.40),
		},
	}
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}

	r, err := NewRetriever(index, embedder, Config{TopK: 3, ScoreThreshold: 0.7})
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "クエリ")
	require.NoError(t, err)
	assert.True(t, embedder.called)

	require.Len(t, results, 2)
	assert.Equal(t, "a.txt", results[0].Chunk.DocumentName)
	assert.Equal(t, "b.txt", results[1].Chunk.DocumentName)
}

func TestRetrieve_AllBelowThresholdReturnsEmpty(t *testing.T) {
	index := &stubIndex{
		results: []document.SearchResult{
			result("a.txt", 0, 0.30),
			result("b.txt", 0, 0.10),
		},
	}

	r, err := NewRetriever(index, &stubEmbedder{vector: []float32{1}}, Config{TopK: 3, ScoreThreshold: 0.7})
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "関連しないクエリ")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_EmptyIndexReturnsEmptyWithoutEmbedding(t *testing.T) {
	index := &stubIndex{empty: true}
	embedder := &stubEmbedder{vector: []float32{1}}

	r, err := NewRetriever(index, embedder, DefaultConfig())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "クエリ")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, embedder.called, "空インデックスではEmbedding生成を行わない")
}

func TestRetrieve_PerDocumentCap(t *testing.T) {
	index := &stubIndex{
		results: []document.SearchResult{
			result("a.txt", 0, 0.99),
			result("a.txt", 1, 0.98),
			result("a.txt", 2, 0.97),
			result("b.txt", 0, 0.90),
			result("c.txt", 0, 0.85),
		},
	}

	r, err := NewRetriever(index, &stubEmbedder{vector: []float32{1}}, Config{
		TopK:           3,
		ScoreThreshold: 0.7,
		MaxPerDocument: 2,
	})
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "クエリ")
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "a.txt", results[0].Chunk.DocumentName)
	assert.Equal(t, "a.txt", results[1].Chunk.DocumentName)
	assert.Equal(t, "b.txt", results[2].Chunk.DocumentName, "同一ドキュメントは2件までで次のドキュメントに譲る")

	assert.Equal(t, 6, index.lastTopK, "上限による間引き分を見込んで多めに取得する")
}

func TestRetrieve_TopKLimit(t *testing.T) {
	index := &stubIndex{
		results: []document.SearchResult{
			result("a.txt", 0, 0.99),
			result("b.txt", 0, 0.98),
			result("c.txt", 0, 0.97),
			result("d.txt", 0, 0.96),
		},
	}

	r, err := NewRetriever(index, &stubEmbedder{vector: []float32{1}}, Config{TopK: 2, ScoreThreshold: 0.5})
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "クエリ")
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestRetrieve_Errors(t *testing.T) {
	t.Run("空クエリはエラー", func(t *testing.T) {
		r, err := NewRetriever(&stubIndex{}, &stubEmbedder{vector: []float32{1}}, DefaultConfig())
		require.NoError(t, err)

		_, err = r.Retrieve(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("Embedding失敗はエラー", func(t *testing.T) {
		embedder := &stubEmbedder{err: errors.New("rate limited")}
		r, err := NewRetriever(&stubIndex{results: []document.SearchResult{result("a.txt", 0, 0.9)}}, embedder, DefaultConfig())
		require.NoError(t, err)

		_, err = r.Retrieve(context.Background(), "クエリ")
		assert.Error(t, err)
	})

	t.Run("検索失敗はエラー", func(t *testing.T) {
		index := &stubIndex{searchErr: errors.New("index broken")}
		r, err := NewRetriever(index, &stubEmbedder{vector: []float32{1}}, DefaultConfig())
		require.NoError(t, err)

		_, err = r.Retrieve(context.Background(), "クエリ")
		assert.Error(t, err)
	})
}
