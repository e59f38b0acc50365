package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
)

// DefaultAttemptTimeout bounds each provider attempt.
const DefaultAttemptTimeout = 20 * time.Second

// Failover tries providers in order until one returns a non-empty completion.
type Failover struct {
	providers      []Provider
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// FailoverOption configures a Failover.
type FailoverOption func(*Failover)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) FailoverOption {
	return func(f *Failover) { f.logger = logger }
}

// WithAttemptTimeout sets the deadline of each provider attempt.
func WithAttemptTimeout(d time.Duration) FailoverOption {
	return func(f *Failover) {
		if d > 0 {
			f.attemptTimeout = d
		}
	}
}

// NewFailover returns a chain over providers in priority order.
func NewFailover(providers []Provider, opts ...FailoverOption) *Failover {
	f := &Failover{
		providers:      providers,
		attemptTimeout: DefaultAttemptTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Providers returns the provider names in order.
func (f *Failover) Providers() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return names
}

// Chat returns the first non-empty completion and the provider that produced it.
// When every provider fails it returns FallbackText and an error wrapping
// ErrAllProvidersFailed, so callers always have something to show.
func (f *Failover) Chat(ctx context.Context, messages []Message, opts Options) (string, string, error) {
	var errs []error
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		text, err := f.attempt(ctx, p, messages, opts)
		if err == nil {
			return text, p.Name(), nil
		}
		f.logger.Warn("llm provider failed",
			zap.String("provider", p.Name()),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no providers configured"))
	}
	return FallbackText, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

type reply struct {
	text string
	err  error
}

// attempt gives p at most attemptTimeout. A provider that ignores ctx is abandoned
// when the deadline passes and its late reply is discarded.
func (f *Failover) attempt(ctx context.Context, p Provider, messages []Message, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		var r reply
		defer func() {
			if rec := recover(); rec != nil {
				r = reply{err: fmt.Errorf("provider panic: %v", rec)}
			}
			done <- r
		}()
		r.text, r.err = p.Chat(ctx, messages, opts)
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		return "", fmt.Errorf("attempt abandoned: %w", ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("attempt abandoned: %w", err)
	}
	if r.err != nil {
		return "", r.err
	}
	if strings.TrimSpace(r.text) == "" {
		return "", errors.New("empty response")
	}
	return r.text, nil
}

// NewFailoverFromConfig builds every configured provider. Providers that cannot be
// constructed are logged and skipped; the chain may end up empty.
func NewFailoverFromConfig(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) *Failover {
	if logger == nil {
		logger = zap.NewNop()
	}
	var providers []Provider
	for _, pc := range cfg.Providers {
		p, err := NewProvider(ctx, pc, cfg.AttemptTimeout)
		if err != nil {
			logger.Warn("skipping llm provider", zap.String("provider", pc.Name), zap.Error(err))
			continue
		}
		providers = append(providers, p)
	}
	return NewFailover(providers, WithLogger(logger), WithAttemptTimeout(cfg.AttemptTimeout))
}
