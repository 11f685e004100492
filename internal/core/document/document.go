package document

import "fmt"

// Document はインデックス対象のドキュメント全体を表す
type Document struct {
	// Name はドキュメントの識別名（結果の出典表示に使用される）
	Name string

	// Content はドキュメントの全文
	Content string
}

// Chunk はインデックスおよび検索の最小単位となるドキュメント断片を表す
type Chunk struct {
	// DocumentName はチャンクの出典ドキュメント名
	DocumentName string `json:"documentName"`

	// Ordinal はドキュメント内でのチャンク連番（0始まり）
	Ordinal int `json:"ordinal"`

	// Content はチャンクの本文
	Content string `json:"content"`

	// Embedding はチャンクのベクトル表現（未埋め込みの場合はnil）
	Embedding []float32 `json:"embedding,omitempty"`

	// Tokens は本文のトークン数
	Tokens int `json:"tokens,omitempty"`
}

// ID はドキュメント名と連番からなる安定した識別子を返す
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.DocumentName, c.Ordinal)
}

// SearchResult はベクトル検索の結果（チャンク + 類似度スコア）を表す
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
