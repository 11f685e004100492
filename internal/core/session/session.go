package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound は存在しないセッションへの操作エラー
	ErrSessionNotFound = errors.New("session not found")
)

// Role は会話メッセージの役割を表す
type Role string

const (
	// RoleUser はユーザー発話
	RoleUser Role = "user"

	// RoleAssistant はアシスタント応答
	RoleAssistant Role = "assistant"
)

// Message は会話履歴の1ターンを表す
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store はセッションストアを抽象化するインターフェース。
// 実装を差し替えることで永続ストアへの置き換えを可能にする。
type Store interface {
	// GetOrCreate は既存セッションのIDを返すか、未知・空のIDに対して
	// 新しいセッションを作成してそのIDを返す
	GetOrCreate(ctx context.Context, sessionID string) (string, error)

	// History はセッションの会話履歴を古い順で返す。
	// 未知のセッションには ErrSessionNotFound を返す。
	History(ctx context.Context, sessionID string) ([]Message, error)

	// Append はセッションにメッセージを追加する。
	// 未知のセッションには ErrSessionNotFound を返す。
	Append(ctx context.Context, sessionID string, msg Message) error

	// Clear はセッションを削除する。存在した場合は true を返す。
	Clear(ctx context.Context, sessionID string) (bool, error)
}
