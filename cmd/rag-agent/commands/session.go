package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

// セッションコマンドは起動中のサーバのAPIに対して操作を行う。
// セッションはサーバプロセスのメモリ上に保持されるため、ローカルでの
// 直接操作はできない。
const sessionRequestTimeout = 10 * time.Second

// SessionHistoryAction はセッションの会話履歴を表示するコマンドのアクション
func SessionHistoryAction(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	sessionID := cmd.String("id")

	url := fmt.Sprintf("%s/api/sessions/%s/history", addr, sessionID)
	body, err := doSessionRequest(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}

	var resp struct {
		SessionID string `json:"session_id"`
		Messages  []struct {
			Role      string    `json:"role"`
			Content   string    `json:"content"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("レスポンスの解析に失敗: %w", err)
	}

	fmt.Printf("セッション: %s (%dターン)\n", resp.SessionID, len(resp.Messages))
	for _, m := range resp.Messages {
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
	}

	return nil
}

// SessionClearAction はセッションを削除するコマンドのアクション
func SessionClearAction(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	sessionID := cmd.String("id")

	url := fmt.Sprintf("%s/api/sessions/%s", addr, sessionID)
	if _, err := doSessionRequest(ctx, http.MethodDelete, url); err != nil {
		return err
	}

	fmt.Printf("セッションを削除しました: %s\n", sessionID)
	return nil
}

func doSessionRequest(ctx context.Context, method, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, sessionRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("サーバへの接続に失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み込みに失敗: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("セッションが見つかりません")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("サーバエラー (status=%d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
