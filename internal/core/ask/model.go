package ask

import (
	"time"

	"github.com/jinford/rag-agent/internal/core/router"
)

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	Query     string // ユーザーの質問文
	SessionID string // セッションID（空なら新規作成）
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	Answer    string           // LLMによる回答
	Sources   []string         // 参照したドキュメント名
	QueryType router.QueryType // 処理方式（direct / retrieval）
	SessionID string           // 会話のセッションID
	Timestamp time.Time        // 回答生成時刻（UTC）
}
