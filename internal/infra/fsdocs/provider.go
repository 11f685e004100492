package fsdocs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/jinford/rag-agent/internal/core/document"
	"github.com/jinford/rag-agent/internal/core/ingest"
)

// ignoreFileName はドキュメントディレクトリ直下に置ける除外パターンファイル
const ignoreFileName = ".ragignore"

// maxDocumentSize はインデックス対象とするファイルサイズの上限
const maxDocumentSize = 10 * 1024 * 1024

// Provider はローカルファイルシステム上のディレクトリからドキュメントを供給する
type Provider struct {
	root   string
	logger *slog.Logger
}

// ProviderOption は Provider のオプション設定
type ProviderOption func(*Provider)

// WithLogger は Provider にロガーを設定する
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider は新しい Provider を作成する
func NewProvider(root string, opts ...ProviderOption) (*Provider, error) {
	if root == "" {
		return nil, fmt.Errorf("documents directory is required")
	}

	p := &Provider{
		root:   root,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p, nil
}

// Name は供給元の識別名を返す
func (p *Provider) Name() string {
	return fmt.Sprintf("fs:%s", p.root)
}

// Fetch はディレクトリ配下のテキストドキュメントを名前順で返す。
// .ragignore および既定パターンに一致するパスとバイナリファイルは除外する。
func (p *Provider) Fetch(ctx context.Context) ([]document.Document, error) {
	info, err := os.Stat(p.root)
	if err != nil {
		return nil, fmt.Errorf("failed to access documents directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents path is not a directory: %s", p.root)
	}

	matcher, err := p.loadIgnorePatterns()
	if err != nil {
		return nil, err
	}

	var docs []document.Document
	err = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxDocumentSize {
			p.logger.Warn("skipping oversized document",
				slog.String("path", rel),
				slog.Int64("size", info.Size()),
			)
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", rel, err)
		}

		if enry.IsBinary(content) {
			p.logger.Debug("skipping binary file", slog.String("path", rel))
			return nil
		}

		docs = append(docs, document.Document{
			Name:    filepath.ToSlash(rel),
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk documents directory: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	p.logger.Info("loaded documents from filesystem",
		slog.String("root", p.root),
		slog.Int("documents", len(docs)),
	)

	return docs, nil
}

// loadIgnorePatterns は .ragignore と既定の除外パターンからマッチャを構築する
func (p *Provider) loadIgnorePatterns() (*gitignore.GitIgnore, error) {
	patterns := defaultIgnorePatterns()

	ignorePath := filepath.Join(p.root, ignoreFileName)
	if content, err := os.ReadFile(ignorePath); err == nil {
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, line)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", ignoreFileName, err)
	}

	return gitignore.CompileIgnoreLines(patterns...), nil
}

// defaultIgnorePatterns は常に除外するパターンを返す
func defaultIgnorePatterns() []string {
	return []string{
		".git",
		".gitignore",
		ignoreFileName,
		".DS_Store",
		"*.swp",
		"*~",
		"*.log",
		"*.tmp",
		".env",
		".env.*",
	}
}

// インターフェース実装の確認
var _ ingest.SourceProvider = (*Provider)(nil)
