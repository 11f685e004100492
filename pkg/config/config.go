package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Server設定
	Server ServerConfig

	// OpenAI設定（Chat + Embeddings）
	OpenAI OpenAIConfig

	// RAG設定（チャンク分割・検索）
	RAG RAGConfig

	// セッション設定
	Session SessionConfig

	// ドキュメントソース設定
	Documents DocumentsConfig

	// Git設定（Gitソース使用時）
	Git GitConfig

	// インデックスバックエンド設定
	Index IndexConfig

	// ログ設定
	Log LogConfig
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Host string
	Port int
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
	Temperature        float64
	MaxTokens          int
}

// RAGConfig はチャンク分割と検索のパラメータ
type RAGConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	TopK                int
	SimilarityThreshold float64
	MaxPerDocument      int
}

// SessionConfig はセッション履歴の設定
type SessionConfig struct {
	MaxHistory int
	Timeout    time.Duration
}

// DocumentsConfig はドキュメントソース設定
type DocumentsConfig struct {
	Path         string
	SnapshotPath string
}

// GitConfig はGit操作設定
type GitConfig struct {
	RepoURL     string
	Ref         string
	CloneDir    string
	SSHKeyPath  string
	SSHPassword string
}

// インデックスバックエンドの種別
const (
	IndexBackendMemory   = "memory"
	IndexBackendPostgres = "postgres"
)

// IndexConfig はインデックスバックエンド設定
type IndexConfig struct {
	// Backend は "memory" または "postgres"
	Backend string

	// Database はpostgresバックエンド使用時の接続設定
	Database DatabaseConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8000),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			Temperature:        getEnvAsFloat("OPENAI_TEMPERATURE", 0.7),
			MaxTokens:          getEnvAsInt("OPENAI_MAX_TOKENS", 1000),
		},
		RAG: RAGConfig{
			ChunkSize:           getEnvAsInt("CHUNK_SIZE", 500),
			ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 50),
			TopK:                getEnvAsInt("TOP_K_RESULTS", 3),
			SimilarityThreshold: getEnvAsFloat("SIMILARITY_THRESHOLD", 0.7),
			MaxPerDocument:      getEnvAsInt("MAX_CHUNKS_PER_DOCUMENT", 2),
		},
		Session: SessionConfig{
			MaxHistory: getEnvAsInt("MAX_SESSION_HISTORY", 10),
			Timeout:    time.Duration(getEnvAsInt("SESSION_TIMEOUT_MINUTES", 60)) * time.Minute,
		},
		Documents: DocumentsConfig{
			Path:         getEnv("DOCUMENTS_PATH", "documents"),
			SnapshotPath: getEnv("INDEX_SNAPSHOT_PATH", "data/index.json"),
		},
		Git: GitConfig{
			RepoURL:     getEnv("GIT_DOCS_REPO_URL", ""),
			Ref:         getEnv("GIT_DOCS_REF", "main"),
			CloneDir:    getEnv("GIT_CLONE_DIR", "data/repos"),
			SSHKeyPath:  getEnv("GIT_SSH_KEY_PATH", ""),
			SSHPassword: getEnv("GIT_SSH_PASSWORD", ""),
		},
		Index: IndexConfig{
			Backend: getEnv("INDEX_BACKEND", "memory"),
			Database: DatabaseConfig{
				Host:     getEnv("DB_HOST", "localhost"),
				Port:     getEnvAsInt("DB_PORT", 5432),
				User:     getEnv("DB_USER", "ragagent"),
				Password: getEnv("DB_PASSWORD", ""),
				DBName:   getEnv("DB_NAME", "ragagent"),
				SSLMode:  getEnv("DB_SSLMODE", "disable"),
			},
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0, 1], got %g", c.RAG.SimilarityThreshold)
	}
	if c.Index.Backend != IndexBackendMemory && c.Index.Backend != IndexBackendPostgres {
		return fmt.Errorf("INDEX_BACKEND must be \"memory\" or \"postgres\", got %q", c.Index.Backend)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
