package embedding

import (
	"context"
	"fmt"
	"strings"

	arkEmbed "github.com/cloudwego/eino-ext/components/embedding/ark"
	dashscopeEmbed "github.com/cloudwego/eino-ext/components/embedding/dashscope"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"

	"github.com/hyperjump/kotae/internal/config"
)

// NewEmbedder builds the configured provider and puts a cache in front of it when
// cfg.CacheSize is positive.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	e, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}

func newProvider(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	apiKey := config.Secret(cfg.APIKey, cfg.APIKeyEnv)
	dim := cfg.Dimensions

	switch provider {
	case "", "mock":
		return NewMockEmbedder(dim), nil
	case "onnx":
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("onnx embedding requires model_path")
		}
		e, err := NewONNXEmbedder(cfg.ModelPath, dim, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "openai":
		if apiKey == "" || cfg.Model == "" {
			return nil, fmt.Errorf("openai embedding missing api key or model")
		}
		localDim := dim
		em, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			APIKey:     apiKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			Dimensions: &localDim,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
		return NewEinoEmbedder(em, dim), nil
	case "ark":
		if apiKey == "" || cfg.Model == "" {
			return nil, fmt.Errorf("ark embedding missing api key or model")
		}
		em, err := arkEmbed.NewEmbedder(ctx, &arkEmbed.EmbeddingConfig{
			APIKey:  apiKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create ark embedder: %w", err)
		}
		return NewEinoEmbedder(em, dim), nil
	case "dashscope":
		if apiKey == "" || cfg.Model == "" {
			return nil, fmt.Errorf("dashscope embedding missing api key or model")
		}
		localDim := dim
		em, err := dashscopeEmbed.NewEmbedder(ctx, &dashscopeEmbed.EmbeddingConfig{
			Model:      cfg.Model,
			APIKey:     apiKey,
			Dimensions: &localDim,
		})
		if err != nil {
			return nil, fmt.Errorf("create dashscope embedder: %w", err)
		}
		return NewEinoEmbedder(em, dim), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, onnx, openai, ark, dashscope)", cfg.Provider)
	}
}
