package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/rag-agent/internal/core/document"
	"github.com/jinford/rag-agent/internal/core/router"
	"github.com/jinford/rag-agent/internal/core/session"
)

// ChatMessage はLLMへ渡す1メッセージを表す
type ChatMessage struct {
	Role    string // system / user / assistant
	Content string
}

// Generator はLLMの回答生成インターフェース
type Generator interface {
	// GenerateChat はメッセージ列に対する補完を生成する
	GenerateChat(ctx context.Context, messages []ChatMessage) (string, error)
}

// Result は回答合成の結果を表す
type Result struct {
	Answer    string
	Sources   []string
	QueryType router.QueryType
}

const (
	// directHistoryWindow は直接回答時にプロンプトへ含める履歴メッセージ数
	directHistoryWindow = 6

	// ragHistoryWindow は検索回答時にプロンプトへ含める履歴メッセージ数
	ragHistoryWindow = 4
)

// Composer はプロンプト構築とLLM呼び出しによる回答合成を行う
type Composer struct {
	generator Generator
	logger    *slog.Logger
}

// Option は Composer のオプション設定
type Option func(*Composer)

// WithLogger は Composer にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// NewComposer は新しいComposerを作成する
func NewComposer(generator Generator, opts ...Option) *Composer {
	c := &Composer{
		generator: generator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ComposeDirect はドキュメント検索なしで直接回答を生成する
func (c *Composer) ComposeDirect(ctx context.Context, query string, history []session.Message) (*Result, error) {
	messages := buildMessages(directSystemPrompt, history, directHistoryWindow, query)

	text, err := c.generator.GenerateChat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &Result{
		Answer:    text,
		Sources:   []string{},
		QueryType: router.QueryTypeDirect,
	}, nil
}

// ComposeWithContext は検索されたチャンクを文脈として回答を生成する。
// チャンクが0件の場合は検索で何も見つからなかった旨を伝える直接回答に
// 切り替え、結果の QueryType も direct として報告する。
func (c *Composer) ComposeWithContext(ctx context.Context, query string, history []session.Message, results []document.SearchResult) (*Result, error) {
	if len(results) == 0 {
		c.logger.Info("no relevant documents found, answering without context")
		messages := buildMessages(noDocumentsSystemPrompt, history, directHistoryWindow, query)

		text, err := c.generator.GenerateChat(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("failed to generate answer: %w", err)
		}

		return &Result{
			Answer:    text,
			Sources:   []string{},
			QueryType: router.QueryTypeDirect,
		}, nil
	}

	prompt := BuildRAGPrompt(query, results)
	messages := buildMessages(prompt, history, ragHistoryWindow, query)

	text, err := c.generator.GenerateChat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &Result{
		Answer:    text,
		Sources:   sourceNames(results),
		QueryType: router.QueryTypeRetrieval,
	}, nil
}

// buildMessages はシステムプロンプト、直近の会話履歴、今回のクエリから
// メッセージ列を組み立てる。履歴は古い順のまま末尾 window 件に切り詰める。
func buildMessages(systemPrompt string, history []session.Message, window int, query string) []ChatMessage {
	if len(history) > window {
		history = history[len(history)-window:]
	}

	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: query})

	return messages
}
