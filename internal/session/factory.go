package session

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// NewStore creates the configured session store keeping window turns per session.
func NewStore(ctx context.Context, cfg config.SessionConfig, window int) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(window, cfg.TTL), nil
	case "redis":
		s, err := NewRedisStore(ctx, RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			Window:    window,
			TTL:       cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session store type: %s (supported: memory, redis)", cfg.Type)
	}
}
