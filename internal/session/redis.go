package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hyperjump/kotae/internal/models"
)

// RedisConfig holds connection and layout settings for RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Window    int
	TTL       time.Duration
}

// RedisStore keeps each session as a JSON array under one key with a TTL, so sessions
// survive restarts and are shared by every server instance. Writes are last-writer-wins.
type RedisStore struct {
	client *goredis.Client
	prefix string
	window int
	ttl    time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrStore, cfg.Addr, err)
	}
	return newRedisStore(client, cfg), nil
}

func newRedisStore(client *goredis.Client, cfg RedisConfig) *RedisStore {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: cfg.KeyPrefix, window: window, ttl: ttl}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrStore, sessionID, err)
	}
	var turns []models.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStore, sessionID, err)
	}
	return turns, nil
}

func (r *RedisStore) Append(ctx context.Context, sessionID string, turns ...models.Turn) error {
	history, err := r.History(ctx, sessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(trim(append(history, turns...), r.window))
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrStore, sessionID, err)
	}
	if err := r.client.Set(ctx, r.key(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrStore, sessionID, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
