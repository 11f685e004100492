package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/rag-agent/internal/api"
)

// HTTP APIのクライアントIPごとのレート制限
const (
	rateLimitRPS   = 10
	rateLimitBurst = 20
)

// ServerStartAction はHTTP APIサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	port := appCtx.Config.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}
	addr := fmt.Sprintf("%s:%d", appCtx.Config.Server.Host, port)

	srv := api.NewServer(
		appCtx.Container.AskService,
		appCtx.Container,
		api.WithServerLogger(appCtx.Logger()),
		api.WithVersion(Version),
		api.WithRateLimit(rateLimitRPS, rateLimitBurst),
	)

	return srv.Run(ctx, addr)
}
