package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
)

// EinoEmbedder adapts an eino embedding component (OpenAI, Ark, DashScope) to Embedder.
type EinoEmbedder struct {
	inner      embedding.Embedder
	dimensions int
}

// NewEinoEmbedder wraps inner. Vectors of any other size than dimensions are rejected.
func NewEinoEmbedder(inner embedding.Embedder, dimensions int) *EinoEmbedder {
	return &EinoEmbedder{inner: inner, dimensions: dimensions}
}

func (e *EinoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Transport failures, short responses and empty
// vectors are reported as ErrUnavailable.
func (e *EinoEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	raw, err := e.inner.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(raw), len(texts))
	}
	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector", ErrUnavailable)
		}
		if e.dimensions > 0 && len(v) != e.dimensions {
			return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(v), e.dimensions)
		}
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *EinoEmbedder) Dimensions() int { return e.dimensions }

func (e *EinoEmbedder) Close() error { return nil }
