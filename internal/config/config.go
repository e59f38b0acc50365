// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Bot         BotConfig         `yaml:"bot"`
	Session     SessionConfig     `yaml:"session"`
	Queue       QueueConfig       `yaml:"queue"`
	Watch       WatchConfig       `yaml:"watch"`
}

// LogConfig holds log output settings. When File is empty, logs go to stderr only.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database path and the root directory uploaded files live under.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	FilesRoot    string `yaml:"files_root"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Type       string       `yaml:"type"` // memory, qdrant, milvus
	Collection string       `yaml:"collection"`
	MemoryPath string       `yaml:"memory_path"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
	Milvus     MilvusConfig `yaml:"milvus"`
}

// QdrantConfig holds Qdrant REST settings.
type QdrantConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MilvusConfig holds Milvus connection settings.
type MilvusConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // mock, openai, ark, dashscope, onnx
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Dimensions int           `yaml:"dimensions"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
	ModelPath  string        `yaml:"model_path"`
	MaxTokens  int           `yaml:"max_tokens"`
}

// LLMConfig holds the ordered provider chain used for answer generation.
type LLMConfig struct {
	Providers      []ProviderConfig `yaml:"providers"`
	AttemptTimeout time.Duration    `yaml:"attempt_timeout"`
	Temperature    float32          `yaml:"temperature"`
	MaxTokens      int              `yaml:"max_tokens"`
}

// ProviderConfig describes one chat model. Providers are tried in list order.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"` // openai, ark
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	Region    string `yaml:"region"`
}

// ChunkingConfig holds chunk size and overlap, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// BotConfig holds answering engine thresholds and limits.
type BotConfig struct {
	GroundedThreshold float64 `yaml:"grounded_threshold"`
	EscalateThreshold float64 `yaml:"escalate_threshold"`
	TopK              int     `yaml:"top_k"`
	HistoryWindow     int     `yaml:"history_window"`
	MaxMessageLength  int     `yaml:"max_message_length"`
	SiteName          string  `yaml:"site_name"`
}

// SessionConfig selects the conversation store.
type SessionConfig struct {
	Type          string        `yaml:"type"` // memory, redis
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
}

// QueueConfig selects how document processing jobs are dispatched.
type QueueConfig struct {
	Type    string   `yaml:"type"` // local, kafka
	Workers int      `yaml:"workers"`
	Buffer  int      `yaml:"buffer"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// WatchConfig holds upload directory watch settings.
type WatchConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.FilesRoot = expandPath(cfg.Storage.FilesRoot, configDir)
	if cfg.VectorStore.MemoryPath != "" {
		cfg.VectorStore.MemoryPath = expandPath(cfg.VectorStore.MemoryPath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = expandPath(cfg.Log.File, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking overlap (%d) must be smaller than size (%d)", c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Bot.EscalateThreshold > c.Bot.GroundedThreshold {
		return fmt.Errorf("escalate threshold %.2f above grounded threshold %.2f", c.Bot.EscalateThreshold, c.Bot.GroundedThreshold)
	}
	switch c.VectorStore.Type {
	case "memory", "qdrant", "milvus":
	default:
		return fmt.Errorf("unknown vector store type: %s", c.VectorStore.Type)
	}
	switch c.Queue.Type {
	case "local":
	case "kafka":
		if len(c.Queue.Brokers) == 0 {
			return fmt.Errorf("kafka queue requires brokers")
		}
	default:
		return fmt.Errorf("unknown queue type: %s", c.Queue.Type)
	}
	return nil
}

// Secret returns value when set, otherwise the content of the environment variable named env.
func Secret(value, env string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
