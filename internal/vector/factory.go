package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// Backend types accepted by NewStore.
const (
	TypeMemory = "memory"
	TypeQdrant = "qdrant"
	TypeMilvus = "milvus"
)

// NewStore creates the configured backend. An empty type selects the memory store.
func NewStore(ctx context.Context, cfg config.VectorStoreConfig) (Store, error) {
	switch cfg.Type {
	case TypeMemory, "":
		if cfg.MemoryPath != "" {
			m, err := OpenMemoryStore(cfg.MemoryPath)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
		return NewMemoryStore(), nil
	case TypeQdrant:
		return NewQdrantStore(QdrantConfig{
			URL:            cfg.Qdrant.URL,
			APIKey:         config.Secret(cfg.Qdrant.APIKey, cfg.Qdrant.APIKeyEnv),
			Timeout:        cfg.Qdrant.Timeout,
			ConnectTimeout: cfg.Qdrant.ConnectTimeout,
		}), nil
	case TypeMilvus:
		m, err := NewMilvusStore(ctx, MilvusConfig{
			Address:  cfg.Milvus.Address,
			Username: cfg.Milvus.Username,
			Password: cfg.Milvus.Password,
			DBName:   cfg.Milvus.DBName,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown vector store type: %s (supported: memory, qdrant, milvus)", cfg.Type)
	}
}
