package chunk

import (
	"fmt"
	"strings"

	"github.com/jinford/rag-agent/internal/core/document"
)

// TokenCounter はテキストのトークン数を数えるインターフェース
type TokenCounter interface {
	Count(text string) int
}

// Config はチャンク分割の設定を表す
type Config struct {
	// ChunkSize はチャンクの目標トークン数
	ChunkSize int

	// Overlap は隣接チャンク間で共有するトークン数
	Overlap int
}

// DefaultConfig はデフォルトのチャンク設定を返す
func DefaultConfig() *Config {
	return &Config{
		ChunkSize: 500,
		Overlap:   50,
	}
}

// Chunker はテキストを文境界を保ったままチャンクに分割する
type Chunker struct {
	counter TokenCounter
	cfg     *Config
}

// NewChunker は新しいChunkerを作成する
func NewChunker(counter TokenCounter, cfg *Config) (*Chunker, error) {
	if counter == nil {
		return nil, fmt.Errorf("token counter is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("overlap must be in [0, chunk size), got %d", cfg.Overlap)
	}
	return &Chunker{counter: counter, cfg: cfg}, nil
}

// Chunk はテキストを文単位で蓄積しながらチャンクに分割する。
// 文の途中では決して分割しない。チャンクサイズを超える単一文は
// そのまま1チャンクとして扱う。隣接チャンクは末尾の文をオーバーラップ
// として共有する。同一入力に対して決定的に動作する。
func (c *Chunker) Chunk(documentName, text string) []document.Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []document.Chunk
	var current []string
	currentTokens := 0

	emit := func() {
		content := strings.TrimSpace(strings.Join(current, " "))
		if content == "" {
			return
		}
		chunks = append(chunks, document.Chunk{
			DocumentName: documentName,
			Ordinal:      len(chunks),
			Content:      content,
			Tokens:       c.counter.Count(content),
		})
	}

	for _, sentence := range sentences {
		tokens := c.counter.Count(sentence)

		// 追加すると目標を超える場合は現在のチャンクを確定し、
		// 末尾のオーバーラップ分を次のチャンクに持ち越す
		if len(current) > 0 && currentTokens+tokens > c.cfg.ChunkSize {
			emit()

			current = c.overlapTail(current)
			currentTokens = 0
			for _, s := range current {
				currentTokens += c.counter.Count(s)
			}
		}

		current = append(current, sentence)
		currentTokens += tokens
	}

	if len(current) > 0 {
		emit()
	}

	return chunks
}

// overlapTail は確定したチャンクの末尾からオーバーラップ分の文を返す。
// 前チャンク全体を持ち越すと前進しなくなるため、最大でも末尾の
// len-1 文までに制限する。
func (c *Chunker) overlapTail(sentences []string) []string {
	if c.cfg.Overlap == 0 || len(sentences) <= 1 {
		return nil
	}

	tokens := 0
	start := len(sentences)
	for i := len(sentences) - 1; i > 0; i-- {
		tokens += c.counter.Count(sentences[i])
		if tokens > c.cfg.Overlap {
			break
		}
		start = i
	}
	if start >= len(sentences) {
		return nil
	}

	tail := make([]string, len(sentences)-start)
	copy(tail, sentences[start:])
	return tail
}

// sentenceTerminators は文末として扱う文字の集合
var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// splitSentences はテキストを文単位に分割する。
// 終端記号（. ! ? および全角の句点類）の直後の空白・改行、
// もしくは空行（段落境界）で区切る。区切り文字は前の文に含める。
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)

	flush := func(start, end int) int {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			sentences = append(sentences, s)
		}
		return end
	}

	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		// 全角の句点類は直後の文字を問わず文末とする
		if r == '。' || r == '！' || r == '？' {
			start = flush(start, i+1)
			continue
		}

		// 半角の終端記号は空白・改行・末尾が続く場合のみ文末とする
		// （"3.14" や "v1.2.3" の途中で切らない）
		if sentenceTerminators[r] {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				start = flush(start, i+1)
			}
			continue
		}

		// 空行は段落境界として文末扱いにする
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			start = flush(start, i)
		}
	}

	if start < len(runes) {
		flush(start, len(runes))
	}

	return sentences
}
