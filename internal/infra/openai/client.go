package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/rag-agent/internal/core/answer"
	"github.com/jinford/rag-agent/internal/core/router"
	"github.com/jinford/rag-agent/internal/core/session"
)

const (
	// DefaultChatModel はデフォルトで使用するOpenAIモデル
	DefaultChatModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// DefaultTemperature は回答生成時のデフォルト温度
	DefaultTemperature = 0.7

	// DefaultMaxTokens は回答生成時のデフォルト最大トークン数
	DefaultMaxTokens = 1000

	// classificationTemperature は分類呼び出しの温度。
	// 判定のぶれを抑えるため生成より低くする。
	classificationTemperature = 0.3

	// classificationHistoryWindow は分類時に渡す履歴メッセージ数
	classificationHistoryWindow = 6

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrProviderUnavailable はリトライしても外部APIの呼び出しに失敗した場合のエラー
	ErrProviderUnavailable = errors.New("llm provider unavailable")
)

// Client は OpenAI API を使用した LLM クライアント実装
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// ClientOption は Client のオプション設定
type ClientOption func(*Client)

// WithChatModel はモデル名を上書きする
func WithChatModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithTemperature は回答生成時の温度を上書きする
func WithTemperature(temperature float64) ClientOption {
	return func(c *Client) {
		c.temperature = temperature
	}
}

// WithMaxTokens は回答生成時の最大トークン数を上書きする
func WithMaxTokens(maxTokens int) ClientOption {
	return func(c *Client) {
		c.maxTokens = maxTokens
	}
}

// WithTimeout はAPI呼び出しのタイムアウトを上書きする
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	c := &Client{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       DefaultChatModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// GenerateChat はメッセージ列に対する補完を生成する
func (c *Client) GenerateChat(ctx context.Context, messages []answer.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    toMessageParams(messages),
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	completion, err := c.completionWithRetry(ctx, params)
	if err != nil {
		return "", err
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return completion.Choices[0].Message.Content, nil
}

// ClassifySearchNeed はクエリと会話履歴を提示し、search_documents ツールを
// 呼び出すべきかのモデル判断を返す
func (c *Client) ClassifySearchNeed(ctx context.Context, query string, history []session.Message) (*router.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if len(history) > classificationHistoryWindow {
		history = history[len(history)-classificationHistoryWindow:]
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(classificationSystemPrompt))
	for _, m := range history {
		switch m.Role {
		case session.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(query))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Tools:       []openai.ChatCompletionToolUnionParam{searchDocumentsTool()},
		Temperature: openai.Float(classificationTemperature),
	}

	completion, err := c.completionWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	message := completion.Choices[0].Message
	for _, toolCall := range message.ToolCalls {
		if toolCall.Function.Name != searchToolName {
			continue
		}

		var args struct {
			Query string `json:"query"`
		}
		// 引数の解析失敗は空クエリとして扱い、呼び出し側が元のクエリで代替する
		_ = json.Unmarshal([]byte(toolCall.Function.Arguments), &args)

		return &router.Decision{
			UseSearch:   true,
			SearchQuery: args.Query,
			Rationale:   message.Content,
		}, nil
	}

	return &router.Decision{
		UseSearch: false,
		Rationale: message.Content,
	}, nil
}

// completionWithRetry はレート制限エラーに対してExponential Backoffで
// リトライしつつ補完を生成する
func (c *Client) completionWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRetryableError(err) {
				continue
			}

			return nil, fmt.Errorf("OpenAI API call failed: %w", err)
		}

		return completion, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

// toMessageParams は ChatMessage 列を openai-go のパラメータ形式へ変換する
func toMessageParams(messages []answer.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			params = append(params, openai.SystemMessage(m.Content))
		case "assistant":
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return params
}

// isRetryableError はリトライすべき一時的なエラーかどうかを判定する。
// レート制限(429)とサーバ側エラー(5xx)を対象とする。
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}

// インターフェース実装の確認
var (
	_ answer.Generator  = (*Client)(nil)
	_ router.Classifier = (*Client)(nil)
)
