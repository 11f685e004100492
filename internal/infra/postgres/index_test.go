package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/rag-agent/internal/core/document"
	coreindex "github.com/jinford/rag-agent/internal/core/index"
)

// setupTestDB は pgvector 入りの PostgreSQL コンテナを起動して接続を返す
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") != "" {
		t.Skip("SKIP_DOCKER_TESTS is set")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=ragtest",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })
	_ = resource.Expire(300)

	params := ConnectionParams{
		Host:     "localhost",
		Port:     mustPort(t, resource),
		User:     "test",
		Password: "test",
		DBName:   "ragtest",
		SSLMode:  "disable",
	}

	var db *DB
	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var err error
		db, err = New(ctx, params)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

func mustPort(t *testing.T, resource *dockertest.Resource) int {
	t.Helper()
	var port int
	_, err := fmt.Sscanf(resource.GetPort("5432/tcp"), "%d", &port)
	require.NoError(t, err)
	return port
}

func chunkWithEmbedding(doc string, ordinal int, embedding []float32) document.Chunk {
	return document.Chunk{
		DocumentName: doc,
		Ordinal:      ordinal,
		Content:      fmt.Sprintf("%s の本文 %d", doc, ordinal),
		Embedding:    embedding,
	}
}

func TestIndex_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db := setupTestDB(t)

	idx, err := NewIndex(ctx, db, 3)
	require.NoError(t, err)

	t.Run("初期状態は空", func(t *testing.T) {
		empty, err := idx.IsEmpty(ctx)
		require.NoError(t, err)
		assert.True(t, empty)

		results, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Rebuildとスコア降順のSearch", func(t *testing.T) {
		require.NoError(t, idx.Rebuild(ctx, []document.Chunk{
			chunkWithEmbedding("a.txt", 0, []float32{1, 0, 0}),
			chunkWithEmbedding("a.txt", 1, []float32{0, 1, 0}),
			chunkWithEmbedding("b.txt", 0, []float32{0.9, 0.1, 0}),
		}))

		empty, err := idx.IsEmpty(ctx)
		require.NoError(t, err)
		assert.False(t, empty)

		results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)

		require.Len(t, results, 2)
		assert.Equal(t, "a.txt#0", results[0].Chunk.ID())
		assert.Equal(t, "b.txt#0", results[1].Chunk.ID())
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("Rebuildは全置換", func(t *testing.T) {
		require.NoError(t, idx.Rebuild(ctx, []document.Chunk{
			chunkWithEmbedding("new.txt", 0, []float32{0, 0, 1}),
		}))

		results, err := idx.Search(ctx, []float32{0, 0, 1}, 10)
		require.NoError(t, err)

		require.Len(t, results, 1)
		assert.Equal(t, "new.txt#0", results[0].Chunk.ID())
	})

	t.Run("0件のRebuildで空になる", func(t *testing.T) {
		require.NoError(t, idx.Rebuild(ctx, nil))

		empty, err := idx.IsEmpty(ctx)
		require.NoError(t, err)
		assert.True(t, empty)
	})

	t.Run("次元不一致は拒否", func(t *testing.T) {
		err := idx.Rebuild(ctx, []document.Chunk{
			chunkWithEmbedding("bad.txt", 0, []float32{1, 0}),
		})
		assert.ErrorIs(t, err, coreindex.ErrDimensionMismatch)

		_, err = idx.Search(ctx, []float32{1, 0}, 3)
		assert.ErrorIs(t, err, coreindex.ErrDimensionMismatch)
	})
}
