// Package embedding turns text into vectors through remote models, a local ONNX model
// or a deterministic mock, with an LRU cache in front.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the embedding backend cannot produce a vector.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
