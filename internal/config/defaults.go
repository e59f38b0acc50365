package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 30
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/knowledge.db"
	}
	if cfg.Storage.FilesRoot == "" {
		cfg.Storage.FilesRoot = "/usr/local/var/kotae/data/files"
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "tenant_knowledge"
	}
	if cfg.VectorStore.Qdrant.URL == "" {
		cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
		cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
	}
	if cfg.VectorStore.Qdrant.Timeout == 0 {
		cfg.VectorStore.Qdrant.Timeout = 3 * time.Second
	}
	if cfg.VectorStore.Qdrant.ConnectTimeout == 0 {
		cfg.VectorStore.Qdrant.ConnectTimeout = 2 * time.Second
	}
	if cfg.VectorStore.Milvus.Address == "" {
		cfg.VectorStore.Milvus.Address = "localhost:19530"
	}
	if cfg.VectorStore.Milvus.DBName == "" {
		cfg.VectorStore.Milvus.DBName = "default"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Model == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
		case "ark":
			cfg.Embedding.APIKeyEnv = "ARK_API_KEY"
		case "dashscope":
			cfg.Embedding.APIKeyEnv = "DASHSCOPE_API_KEY"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}

	if cfg.LLM.AttemptTimeout == 0 {
		cfg.LLM.AttemptTimeout = 20 * time.Second
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if p.Type == "" {
			p.Type = "openai"
		}
		if p.Name == "" {
			p.Name = p.Type
		}
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 2000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}

	if cfg.Bot.GroundedThreshold == 0 {
		cfg.Bot.GroundedThreshold = 0.75
	}
	if cfg.Bot.EscalateThreshold == 0 {
		cfg.Bot.EscalateThreshold = 0.55
	}
	if cfg.Bot.TopK == 0 {
		cfg.Bot.TopK = 5
	}
	if cfg.Bot.HistoryWindow == 0 {
		cfg.Bot.HistoryWindow = 6
	}
	if cfg.Bot.MaxMessageLength == 0 {
		cfg.Bot.MaxMessageLength = 500
	}
	if cfg.Bot.SiteName == "" {
		cfg.Bot.SiteName = "our company"
	}

	if cfg.Session.Type == "" {
		cfg.Session.Type = "memory"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 30 * time.Minute
	}
	if cfg.Session.RedisAddr == "" {
		cfg.Session.RedisAddr = "localhost:6379"
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = "kotae:session:"
	}

	if cfg.Queue.Type == "" {
		cfg.Queue.Type = "local"
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.Buffer == 0 {
		cfg.Queue.Buffer = 64
	}
	if cfg.Queue.Topic == "" {
		cfg.Queue.Topic = "kotae.documents"
	}
	if cfg.Queue.GroupID == "" {
		cfg.Queue.GroupID = "kotae-processor"
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".doc", ".docx", ".odt", ".rtf", ".xlsx", ".html", ".htm"}
	}
}
