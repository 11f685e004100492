package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/rag-agent/cmd/rag-agent/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:    "rag-agent",
		Usage:   "ドキュメント検索に基づく質問応答（RAG）バックエンド",
		Version: commands.Version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTP APIサーバを起動",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8000）",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
			{
				Name:  "index",
				Usage: "インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "rebuild",
						Usage: "ドキュメントからインデックスを再構築",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringSliceFlag{
								Name:  "source",
								Usage: "インデックス対象（ディレクトリまたはGit URL、複数指定可。省略時は設定値）",
							},
						},
						Action: commands.IndexRebuildAction,
					},
				},
			},
			{
				Name:  "ask",
				Usage: "1回限りの質問応答を実行",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "質問文",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "セッションID（省略時は新規作成）",
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "session",
				Usage: "セッション管理コマンド（起動中のサーバに対して操作）",
				Commands: []*cli.Command{
					{
						Name:  "history",
						Usage: "セッションの会話履歴を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "addr",
								Usage: "サーバのベースURL",
								Value: "http://localhost:8000",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "セッションID",
								Required: true,
							},
						},
						Action: commands.SessionHistoryAction,
					},
					{
						Name:  "clear",
						Usage: "セッションを削除",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "addr",
								Usage: "サーバのベースURL",
								Value: "http://localhost:8000",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "セッションID",
								Required: true,
							},
						},
						Action: commands.SessionClearAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
