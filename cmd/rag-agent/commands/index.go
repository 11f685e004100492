package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// IndexRebuildAction はインデックスを再構築するコマンドのアクション
func IndexRebuildAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sources := cmd.StringSlice("source")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Logger().Info("starting reindex", "sources", sources)

	result, err := appCtx.Container.Reindex(ctx, sources)
	if err != nil {
		return fmt.Errorf("インデックス再構築に失敗: %w", err)
	}

	fmt.Printf("インデックス再構築が完了しました\n")
	fmt.Printf("  ドキュメント数: %d\n", result.DocumentsLoaded)
	fmt.Printf("  チャンク数:     %d\n", result.ChunksIndexed)

	return nil
}
