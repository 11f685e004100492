package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore はプロセス内メモリ上のセッションストア実装。
// 履歴はセッションごとに上限数で打ち切られ（古いターンから退避する
// スライディングウィンドウ）、一定時間アクセスのないセッションは
// 次回アクセス時の掃除で破棄される。複数ゴルーチンから安全に利用できる。
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionData

	maxHistory int
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

type sessionData struct {
	messages     []Message
	createdAt    time.Time
	lastAccessed time.Time
}

// MemoryStoreOption は MemoryStore のオプション設定
type MemoryStoreOption func(*MemoryStore)

// WithStoreLogger は MemoryStore にロガーを設定する
func WithStoreLogger(logger *slog.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// withNow はテスト用に現在時刻の供給源を差し替える
func withNow(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore は新しい MemoryStore を作成する。
// maxHistory はセッションごとに保持するメッセージ数の上限、
// ttl は最終アクセスからの破棄猶予（0以下で無期限）。
func NewMemoryStore(maxHistory int, ttl time.Duration, opts ...MemoryStoreOption) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = 10
	}

	s := &MemoryStore{
		sessions:   make(map[string]*sessionData),
		maxHistory: maxHistory,
		ttl:        ttl,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// GetOrCreate は既存セッションのIDを返すか、新しいセッションを作成する
func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpiredLocked()

	if sessionID != "" {
		if data, ok := s.sessions[sessionID]; ok {
			data.lastAccessed = s.now()
			return sessionID, nil
		}
	}

	newID := uuid.NewString()
	now := s.now()
	s.sessions[newID] = &sessionData{
		createdAt:    now,
		lastAccessed: now,
	}
	s.logger.Info("created new session", "sessionID", newID)
	return newID, nil
}

// History はセッションの履歴を古い順で返す
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	data.lastAccessed = s.now()

	history := make([]Message, len(data.messages))
	copy(history, data.messages)
	return history, nil
}

// Append はセッションにメッセージを追加し、上限を超えた分を古い側から退避する
func (s *MemoryStore) Append(_ context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	data.messages = append(data.messages, msg)
	if len(data.messages) > s.maxHistory {
		trimmed := make([]Message, s.maxHistory)
		copy(trimmed, data.messages[len(data.messages)-s.maxHistory:])
		data.messages = trimmed
	}
	data.lastAccessed = s.now()
	return nil
}

// Clear はセッションを削除する
func (s *MemoryStore) Clear(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(s.sessions, sessionID)
	s.logger.Info("cleared session", "sessionID", sessionID)
	return true, nil
}

// sweepExpiredLocked は最終アクセスがTTLを超えたセッションを破棄する。
// 呼び出し側が s.mu を保持していること。
func (s *MemoryStore) sweepExpiredLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id, data := range s.sessions {
		if data.lastAccessed.Before(cutoff) {
			delete(s.sessions, id)
			s.logger.Debug("swept expired session", "sessionID", id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
