package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jinford/rag-agent/internal/core/document"
	"github.com/jinford/rag-agent/internal/core/ingest"
	"github.com/jinford/rag-agent/internal/infra/fsdocs"
)

// Provider は Git リポジトリからドキュメントを供給する。
// 取得のたびにクローンまたは pull でワークツリーを最新化し、
// ワークツリー上のテキストファイルをドキュメントとして返す。
type Provider struct {
	client  *Client
	url     string
	ref     string
	baseDir string
	logger  *slog.Logger
}

// ProviderOption は Provider のオプション設定
type ProviderOption func(*Provider)

// WithLogger は Provider にロガーを設定する
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider は新しい Provider を作成する。
// baseDir はクローン先のベースディレクトリ、ref は取得するブランチ名。
func NewProvider(client *Client, url, ref, baseDir string, opts ...ProviderOption) (*Provider, error) {
	if url == "" {
		return nil, fmt.Errorf("repository URL is required")
	}
	if ref == "" {
		ref = "main"
	}

	p := &Provider{
		client:  client,
		url:     url,
		ref:     ref,
		baseDir: baseDir,
		logger:  slog.Default(),
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
	return fmt.Sprintf("git:%s", p.url)
}

// Fetch はリポジトリを最新化し、ワークツリー上のドキュメント一覧を返す。
// ドキュメント名には「ホスト名/リポジトリパス」のプレフィックスが付く。
func (p *Provider) Fetch(ctx context.Context) ([]document.Document, error) {
	dirName, err := p.client.URLToDirectoryName(p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory name: %w", err)
	}

	repoPath := filepath.Join(p.baseDir, dirName)
	if err := p.client.CloneOrPull(ctx, p.url, repoPath, p.ref); err != nil {
		return nil, fmt.Errorf("failed to clone/pull repository: %w", err)
	}

	p.logger.Info("synced git repository",
		slog.String("url", p.url),
		slog.String("ref", p.ref),
	)

	reader, err := fsdocs.NewProvider(repoPath, fsdocs.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}

	docs, err := reader.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	prefix := strings.ReplaceAll(dirName, string(filepath.Separator), "/")
	for i := range docs {
		docs[i].Name = prefix + "/" + docs[i].Name
	}

	return docs, nil
}

// インターフェース実装の確認
var _ ingest.SourceProvider = (*Provider)(nil)
