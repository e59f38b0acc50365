// Package llm talks to chat models and fails over between them in priority order.
package llm

import (
	"context"
	"errors"
)

// ErrAllProvidersFailed is returned when no provider produced a usable response.
var ErrAllProvidersFailed = errors.New("all llm providers failed")

// FallbackText is the reply shown when every provider failed.
const FallbackText = "I'm sorry, I can't answer right now. Please try again in a few minutes or contact our support team."

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to a model.
type Message struct {
	Role    string
	Content string
}

// Options tune a single completion.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Provider is one chat model endpoint.
type Provider interface {
	Name() string
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}
