package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jinford/rag-agent/internal/core/document"
)

var (
	// ErrSnapshotNotFound はスナップショットが存在しない場合のエラー
	ErrSnapshotNotFound = errors.New("index snapshot not found")

	// ErrSnapshotIncompatible は保存済みスナップショットが現在の設定と
	// 互換性がない場合のエラー（次元や埋め込みモデルの不一致）
	ErrSnapshotIncompatible = errors.New("index snapshot incompatible with current configuration")
)

// SnapshotStore はスナップショットの永続化先を抽象化するインターフェース。
// 存在しないスナップショットの Read は ErrSnapshotNotFound を返す。
type SnapshotStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
}

// Snapshot はディスクに永続化されるインデックスの表現
type Snapshot struct {
	EmbeddingModel string           `json:"embeddingModel"`
	Dimension      int              `json:"dimension"`
	CreatedAt      time.Time        `json:"createdAt"`
	Chunks         []document.Chunk `json:"chunks"`
}

// Persist は現在のインデックス内容（全チャンク本文・メタデータ・ベクトル）を
// スナップショットとして永続化する
func (idx *Index) Persist(ctx context.Context, store SnapshotStore, path, embeddingModel string) error {
	snapshot := Snapshot{
		EmbeddingModel: embeddingModel,
		Dimension:      idx.dimension,
		CreatedAt:      time.Now().UTC(),
		Chunks:         idx.chunksCopy(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal index snapshot: %w", err)
	}

	if err := store.Write(ctx, path, data); err != nil {
		return fmt.Errorf("failed to write index snapshot: %w", err)
	}

	idx.logger.Info("index snapshot persisted", "path", path, "chunks", len(snapshot.Chunks))
	return nil
}

// Load はスナップショットを読み込みインデックスを再構築する。
// 保存時の次元または埋め込みモデルが現在の設定と異なる場合は、
// 古いスナップショットを黙って受け入れず ErrSnapshotIncompatible で拒否する。
// 戻り値は読み込んだチャンク数。
func (idx *Index) Load(ctx context.Context, store SnapshotStore, path, embeddingModel string) (int, error) {
	data, err := store.Read(ctx, path)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to read index snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return 0, fmt.Errorf("failed to unmarshal index snapshot: %w", err)
	}

	if snapshot.Dimension != idx.dimension {
		return 0, fmt.Errorf("%w: snapshot dimension %d, configured %d",
			ErrSnapshotIncompatible, snapshot.Dimension, idx.dimension)
	}
	if snapshot.EmbeddingModel != "" && embeddingModel != "" && snapshot.EmbeddingModel != embeddingModel {
		return 0, fmt.Errorf("%w: snapshot model %q, configured %q",
			ErrSnapshotIncompatible, snapshot.EmbeddingModel, embeddingModel)
	}

	if err := idx.Rebuild(ctx, snapshot.Chunks); err != nil {
		return 0, fmt.Errorf("failed to rebuild index from snapshot: %w", err)
	}

	idx.logger.Info("index snapshot loaded", "path", path, "chunks", len(snapshot.Chunks))
	return len(snapshot.Chunks), nil
}
