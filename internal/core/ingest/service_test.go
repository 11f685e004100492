package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/rag-agent/internal/core/document"
)

type stubProvider struct {
	name string
	docs []document.Document
	err  error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(ctx context.Context) ([]document.Document, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.docs, nil
}

// sentenceChunker は文単位で1チャンクずつ返す単純な実装
type sentenceChunker struct{}

func (c *sentenceChunker) Chunk(documentName, text string) []document.Chunk {
	var chunks []document.Chunk
	for i, s := range strings.Split(text, "。") {
		if s == "" {
			continue
		}
		chunks = append(chunks, document.Chunk{
			DocumentName: documentName,
			Ordinal:      i,
			Content:      s + "。",
		})
	}
	return chunks
}

type stubBatchEmbedder struct {
	err       error
	lastTexts []string
	mismatch  bool
}

func (e *stubBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.lastTexts = texts
	if e.err != nil {
		return nil, e.err
	}
	n := len(texts)
	if e.mismatch {
		n--
	}
	embeddings := make([][]float32, n)
	for i := range embeddings {
		embeddings[i] = []float32{float32(i), 1}
	}
	return embeddings, nil
}

type captureIndex struct {
	chunks []document.Chunk
	err    error
	called bool
}

func (i *captureIndex) Rebuild(ctx context.Context, chunks []document.Chunk) error {
	i.called = true
	if i.err != nil {
		return i.err
	}
	i.chunks = chunks
	return nil
}

func TestReindex(t *testing.T) {
	ctx := context.Background()

	t.Run("全ソースのドキュメントをチャンク化して再構築する", func(t *testing.T) {
		providers := []SourceProvider{
			&stubProvider{name: "fs", docs: []document.Document{
				{Name: "a.txt", Content: "一文目。二文目。"},
			}},
			&stubProvider{name: "git", docs: []document.Document{
				{Name: "b.txt", Content: "三文目。"},
			}},
		}
		embedder := &stubBatchEmbedder{}
		index := &captureIndex{}

		svc := NewIngestService(&sentenceChunker{}, embedder, index)

		result, err := svc.Reindex(ctx, providers)
		require.NoError(t, err)

		assert.Equal(t, 2, result.DocumentsLoaded)
		assert.Equal(t, 3, result.ChunksIndexed)

		require.Len(t, index.chunks, 3)
		for _, c := range index.chunks {
			assert.NotNil(t, c.Embedding, "全チャンクにEmbeddingが付与される")
		}
		assert.Equal(t, []string{"一文目。", "二文目。", "三文目。"}, embedder.lastTexts)
	})

	t.Run("ドキュメント0件でも空インデックスを構築する", func(t *testing.T) {
		index := &captureIndex{}
		svc := NewIngestService(&sentenceChunker{}, &stubBatchEmbedder{}, index)

		result, err := svc.Reindex(ctx, []SourceProvider{&stubProvider{name: "fs"}})
		require.NoError(t, err)

		assert.Equal(t, 0, result.ChunksIndexed)
		assert.True(t, index.called, "0件でもRebuildは呼ばれる")
	})

	t.Run("ソースなしはエラー", func(t *testing.T) {
		svc := NewIngestService(&sentenceChunker{}, &stubBatchEmbedder{}, &captureIndex{})
		_, err := svc.Reindex(ctx, nil)
		assert.Error(t, err)
	})

	t.Run("取得失敗はエラー", func(t *testing.T) {
		svc := NewIngestService(&sentenceChunker{}, &stubBatchEmbedder{}, &captureIndex{})
		_, err := svc.Reindex(ctx, []SourceProvider{&stubProvider{name: "fs", err: errors.New("permission denied")}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fs")
	})

	t.Run("Embedding件数の不一致はエラー", func(t *testing.T) {
		providers := []SourceProvider{
			&stubProvider{name: "fs", docs: []document.Document{{Name: "a.txt", Content: "一文目。"}}},
		}
		svc := NewIngestService(&sentenceChunker{}, &stubBatchEmbedder{mismatch: true}, &captureIndex{})
		_, err := svc.Reindex(ctx, providers)
		assert.Error(t, err)
	})

	t.Run("再構築失敗はエラー", func(t *testing.T) {
		providers := []SourceProvider{
			&stubProvider{name: "fs", docs: []document.Document{{Name: "a.txt", Content: "一文目。"}}},
		}
		index := &captureIndex{err: errors.New("dimension mismatch")}
		svc := NewIngestService(&sentenceChunker{}, &stubBatchEmbedder{}, index)
		_, err := svc.Reindex(ctx, providers)
		assert.Error(t, err)
	})

	t.Run("永続化の失敗は結果に影響しない", func(t *testing.T) {
		providers := []SourceProvider{
			&stubProvider{name: "fs", docs: []document.Document{{Name: "a.txt", Content: "一文目。"}}},
		}
		persistErr := fmt.Errorf("disk full")
		svc := NewIngestService(&sentenceChunker{}, &stubBatchEmbedder{}, &captureIndex{},
			WithPersist(func(ctx context.Context) error { return persistErr }),
		)

		result, err := svc.Reindex(ctx, providers)
		require.NoError(t, err)
		assert.Equal(t, 1, result.ChunksIndexed)
	})

	t.Run("永続化は再構築成功後に呼ばれる", func(t *testing.T) {
		providers := []SourceProvider{
			&stubProvider{name: "fs", docs: []document.Document{{Name: "a.txt", Content: "一文目。"}}},
		}
		index := &captureIndex{}
		persisted := false
		svc := NewIngestService(&sentenceChunker{}, &stubBatchEmbedder{}, index,
			WithPersist(func(ctx context.Context) error {
				persisted = true
				assert.True(t, index.called)
				return nil
			}),
		)

		_, err := svc.Reindex(ctx, providers)
		require.NoError(t, err)
		assert.True(t, persisted)
	})
}
