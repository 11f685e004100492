// Package container はアプリケーションの依存関係を束ねるDIコンテナを提供する。
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/rag-agent/internal/core/answer"
	"github.com/jinford/rag-agent/internal/core/ask"
	"github.com/jinford/rag-agent/internal/core/chunk"
	coreindex "github.com/jinford/rag-agent/internal/core/index"
	"github.com/jinford/rag-agent/internal/core/ingest"
	"github.com/jinford/rag-agent/internal/core/retrieve"
	"github.com/jinford/rag-agent/internal/core/router"
	"github.com/jinford/rag-agent/internal/core/session"
	"github.com/jinford/rag-agent/internal/infra/fsdocs"
	"github.com/jinford/rag-agent/internal/infra/git"
	"github.com/jinford/rag-agent/internal/infra/openai"
	"github.com/jinford/rag-agent/internal/infra/postgres"
	"github.com/jinford/rag-agent/internal/infra/snapshot"
	"github.com/jinford/rag-agent/pkg/config"
)

// Embedder はクエリ用とバッチ用のEmbedding生成を合わせたインターフェース
type Embedder interface {
	retrieve.Embedder
	ingest.BatchEmbedder
}

// LLMClient はクエリ分類と回答生成を合わせたインターフェース
type LLMClient interface {
	router.Classifier
	answer.Generator
}

// vectorIndex は検索と再構築の両方を提供するインデックスのインターフェース。
// メモリバックエンドとpostgresバックエンドの共通部分。
type vectorIndex interface {
	retrieve.Index
	ingest.Index
}

// Container はアプリケーションのサービスと依存関係を保持する
type Container struct {
	Config     *config.Config
	Logger     *slog.Logger
	AskService *ask.AskService
	Ingest     *ingest.IngestService
	Sessions   *session.MemoryStore
	Embedder   Embedder

	index     vectorIndex
	gitClient *git.Client
	db        *postgres.DB
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  Embedder
	llmClient LLMClient
}

// Option は Container 構築時のオプション
type Option func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) Option {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder Embedder) Option {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client LLMClient) Option {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// New は設定からコンテナを生成する。
// メモリバックエンドの場合は起動時にスナップショットの読み込みを試みる。
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		e, err := openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		embedder = e
	}

	// LLMClient (OpenAI)
	llmClient := options.llmClient
	if llmClient == nil {
		c, err := openai.NewClient(
			cfg.OpenAI.APIKey,
			openai.WithChatModel(cfg.OpenAI.ChatModel),
			openai.WithTemperature(cfg.OpenAI.Temperature),
			openai.WithMaxTokens(cfg.OpenAI.MaxTokens),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		llmClient = c
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Embedder: embedder,
	}

	// インデックスバックエンドの選択
	var persist ingest.PersistFunc
	switch cfg.Index.Backend {
	case config.IndexBackendPostgres:
		db, err := postgres.New(ctx, postgres.ConnectionParams{
			Host:     cfg.Index.Database.Host,
			Port:     cfg.Index.Database.Port,
			User:     cfg.Index.Database.User,
			Password: cfg.Index.Database.Password,
			DBName:   cfg.Index.Database.DBName,
			SSLMode:  cfg.Index.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		pgIndex, err := postgres.NewIndex(ctx, db, cfg.OpenAI.EmbeddingDimension, postgres.WithIndexLogger(logger))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize postgres index: %w", err)
		}
		c.db = db
		c.index = pgIndex

	default: // memory
		memIndex, err := coreindex.New(cfg.OpenAI.EmbeddingDimension, coreindex.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize index: %w", err)
		}
		store := snapshot.NewFileStore()
		loadSnapshot(ctx, logger, memIndex, store, cfg)
		persist = func(ctx context.Context) error {
			return memIndex.Persist(ctx, store, cfg.Documents.SnapshotPath, cfg.OpenAI.EmbeddingModel)
		}
		c.index = memIndex
	}

	// Retriever
	retriever, err := retrieve.NewRetriever(c.index, embedder, retrieve.Config{
		TopK:           cfg.RAG.TopK,
		ScoreThreshold: cfg.RAG.SimilarityThreshold,
		MaxPerDocument: cfg.RAG.MaxPerDocument,
	}, retrieve.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize retriever: %w", err)
	}

	// Chunker
	counter, err := chunk.NewTokenCounter()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize token counter: %w", err)
	}
	chunker, err := chunk.NewChunker(counter, &chunk.Config{
		ChunkSize: cfg.RAG.ChunkSize,
		Overlap:   cfg.RAG.ChunkOverlap,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	// セッションストア
	sessions := session.NewMemoryStore(cfg.Session.MaxHistory, cfg.Session.Timeout)
	c.Sessions = sessions

	// コアサービス
	rt := router.NewRouter(llmClient, router.WithLogger(logger))
	composer := answer.NewComposer(llmClient, answer.WithLogger(logger))
	c.AskService = ask.NewAskService(rt, retriever, composer, sessions, ask.WithAskLogger(logger))

	ingestOpts := []ingest.IngestServiceOption{ingest.WithIngestLogger(logger)}
	if persist != nil {
		ingestOpts = append(ingestOpts, ingest.WithPersist(persist))
	}
	c.Ingest = ingest.NewIngestService(chunker, embedder, c.index, ingestOpts...)

	c.gitClient = git.NewClient(cfg.Git.SSHKeyPath, cfg.Git.SSHPassword)

	return c, nil
}

// loadSnapshot は起動時にスナップショットの読み込みを試みる。
// 存在しない・互換性がない場合は警告を残して空のインデックスで開始する。
func loadSnapshot(ctx context.Context, logger *slog.Logger, idx *coreindex.Index, store coreindex.SnapshotStore, cfg *config.Config) {
	loaded, err := idx.Load(ctx, store, cfg.Documents.SnapshotPath, cfg.OpenAI.EmbeddingModel)
	switch {
	case err == nil:
		logger.Info("index restored from snapshot",
			slog.String("path", cfg.Documents.SnapshotPath),
			slog.Int("chunks", loaded),
		)
	case errors.Is(err, coreindex.ErrSnapshotNotFound):
		logger.Info("no index snapshot found, starting with empty index",
			slog.String("path", cfg.Documents.SnapshotPath),
		)
	case errors.Is(err, coreindex.ErrSnapshotIncompatible):
		logger.Warn("index snapshot incompatible, starting with empty index",
			slog.String("path", cfg.Documents.SnapshotPath),
			slog.String("error", err.Error()),
		)
	default:
		logger.Warn("failed to load index snapshot, starting with empty index",
			slog.String("path", cfg.Documents.SnapshotPath),
			slog.String("error", err.Error()),
		)
	}
}

// Reindex は指定されたソースからインデックスを再構築する。
// sources が空の場合は設定済みのドキュメントディレクトリと
// Gitリポジトリ（設定されている場合）を対象にする。
func (c *Container) Reindex(ctx context.Context, sources []string) (*ingest.ReindexResult, error) {
	providers, err := c.resolveProviders(sources)
	if err != nil {
		return nil, err
	}
	return c.Ingest.Reindex(ctx, providers)
}

// resolveProviders はソース指定文字列をSourceProviderに解決する。
// Git URLと判定される文字列はGitプロバイダに、それ以外はローカル
// ディレクトリのプロバイダになる。
func (c *Container) resolveProviders(sources []string) ([]ingest.SourceProvider, error) {
	if len(sources) == 0 {
		return c.defaultProviders()
	}

	providers := make([]ingest.SourceProvider, 0, len(sources))
	for _, source := range sources {
		if isGitURL(source) {
			p, err := git.NewProvider(c.gitClient, source, c.Config.Git.Ref, c.Config.Git.CloneDir,
				git.WithLogger(c.Logger))
			if err != nil {
				return nil, fmt.Errorf("failed to create git provider for %q: %w", source, err)
			}
			providers = append(providers, p)
			continue
		}
		p, err := fsdocs.NewProvider(source, fsdocs.WithLogger(c.Logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create document provider for %q: %w", source, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func (c *Container) defaultProviders() ([]ingest.SourceProvider, error) {
	var providers []ingest.SourceProvider

	fsProvider, err := fsdocs.NewProvider(c.Config.Documents.Path, fsdocs.WithLogger(c.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create document provider: %w", err)
	}
	providers = append(providers, fsProvider)

	if c.Config.Git.RepoURL != "" {
		gitProvider, err := git.NewProvider(c.gitClient, c.Config.Git.RepoURL, c.Config.Git.Ref,
			c.Config.Git.CloneDir, git.WithLogger(c.Logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create git provider: %w", err)
		}
		providers = append(providers, gitProvider)
	}

	return providers, nil
}

// isGitURL はソース指定文字列がGitリポジトリのURLかを判定する
func isGitURL(source string) bool {
	return strings.Contains(source, "://") ||
		strings.HasPrefix(source, "git@") ||
		strings.HasSuffix(source, ".git")
}

// Close はコンテナが保持するリソースをクリーンアップする
func (c *Container) Close() {
	if c.db != nil {
		c.db.Close()
	}
}
