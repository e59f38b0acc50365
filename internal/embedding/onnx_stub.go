//go:build !cgo
// +build !cgo

package embedding

import "fmt"

// ONNXEmbedder is unavailable without CGO; see onnx.go.
type ONNXEmbedder struct{ Embedder }

// NewONNXEmbedder always fails when built without CGO.
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: onnx embedder requires CGO_ENABLED=1 and onnxruntime", ErrUnavailable)
}
