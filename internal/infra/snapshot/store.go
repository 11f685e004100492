package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jinford/rag-agent/internal/core/index"
)

// FileStore はローカルファイルシステム上のスナップショットストア実装
type FileStore struct{}

// NewFileStore は新しい FileStore を作成する
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Read はスナップショットファイルを読み込む。
// ファイルが存在しない場合は index.ErrSnapshotNotFound を返す。
func (s *FileStore) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, index.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return data, nil
}

// Write はスナップショットを書き込む。
// 一時ファイルに書いてからリネームするため、途中で失敗しても
// 既存のスナップショットは壊れない。
func (s *FileStore) Write(_ context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	return nil
}

// インターフェース実装の確認
var _ index.SnapshotStore = (*FileStore)(nil)
