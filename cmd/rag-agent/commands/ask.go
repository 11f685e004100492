package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/rag-agent/internal/core/ask"
)

// AskAction は1回限りの質問応答を実行するコマンドのアクション。
// メモリバックエンドの場合は起動時に読み込んだスナップショットを検索対象とする。
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	sessionID := cmd.String("session")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.AskService.Ask(ctx, ask.AskParams{
		Query:     query,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("質問応答に失敗: %w", err)
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Printf("\n参照ドキュメント: %s\n", strings.Join(result.Sources, ", "))
	}

	return nil
}
