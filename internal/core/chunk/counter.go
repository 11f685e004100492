package chunk

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter は tiktoken によるトークンカウンタ実装
type TiktokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter は cl100k_base エンコーダを使用したカウンタを作成する
// （OpenAIのtext-embedding-3-small / gpt-4o系と互換）
func NewTokenCounter() (*TiktokenCounter, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}
	return &TiktokenCounter{encoder: encoder}, nil
}

// Count はテキストのトークン数を返す
func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

var _ TokenCounter = (*TiktokenCounter)(nil)
