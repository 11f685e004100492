package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("空のIDで新規作成", func(t *testing.T) {
		store := NewMemoryStore(10, 0)
		id, err := store.GetOrCreate(ctx, "")
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("既存のIDはそのまま返す", func(t *testing.T) {
		store := NewMemoryStore(10, 0)
		id, err := store.GetOrCreate(ctx, "")
		require.NoError(t, err)

		same, err := store.GetOrCreate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, same)
	})

	t.Run("未知のIDは新しいセッションを作成", func(t *testing.T) {
		store := NewMemoryStore(10, 0)
		id, err := store.GetOrCreate(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.NotEqual(t, "does-not-exist", id)
	})
}

func TestAppendAndHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("追加した順で履歴が返る", func(t *testing.T) {
		store := NewMemoryStore(10, 0)
		id, err := store.GetOrCreate(ctx, "")
		require.NoError(t, err)

		require.NoError(t, store.Append(ctx, id, Message{Role: RoleUser, Content: "question"}))
		require.NoError(t, store.Append(ctx, id, Message{Role: RoleAssistant, Content: "answer"}))

		history, err := store.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, RoleUser, history[0].Role)
		assert.Equal(t, "question", history[0].Content)
		assert.Equal(t, RoleAssistant, history[1].Role)
		assert.False(t, history[0].Timestamp.IsZero())
	})

	t.Run("未知のセッションへのAppendはエラー", func(t *testing.T) {
		store := NewMemoryStore(10, 0)
		err := store.Append(ctx, "unknown", Message{Role: RoleUser, Content: "x"})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("未知のセッションのHistoryはエラー", func(t *testing.T) {
		store := NewMemoryStore(10, 0)
		_, err := store.History(ctx, "unknown")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestAppend_SlidingWindowCap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 0)
	id, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	// 12ターン追加済みのセッションにさらに2ターン追加
	for i := 0; i < 14; i++ {
		require.NoError(t, store.Append(ctx, id, Message{
			Role:    RoleUser,
			Content: fmt.Sprintf("turn-%d", i),
		}))
	}

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 10, "上限を超えた分は古い側から退避される")

	// 最新10件が古い順で並ぶ
	assert.Equal(t, "turn-4", history[0].Content)
	assert.Equal(t, "turn-13", history[9].Content)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 0)

	t.Run("未知のIDはfound=false", func(t *testing.T) {
		found, err := store.Clear(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("既知のIDはfound=trueで以後の履歴は空", func(t *testing.T) {
		id, err := store.GetOrCreate(ctx, "")
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, id, Message{Role: RoleUser, Content: "hello"}))

		found, err := store.Clear(ctx, id)
		require.NoError(t, err)
		assert.True(t, found)

		history, err := store.History(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestTTLSweep(t *testing.T) {
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(10, 60*time.Minute, withNow(func() time.Time { return current }))

	stale, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	// 61分経過後のアクセスで期限切れセッションが破棄される
	current = current.Add(61 * time.Minute)
	fresh, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)
	assert.NotEqual(t, stale, fresh)

	// 破棄済みのIDを渡すと新しいセッションが作られる
	reborn, err := store.GetOrCreate(ctx, stale)
	require.NoError(t, err)
	assert.NotEqual(t, stale, reborn)
}
