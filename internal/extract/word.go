package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/lu4p/cat"
)

var errAntiwordMissing = errors.New("antiword is not installed")

// extractDOC converts legacy Word files with antiword, the only supported path for .doc.
func (e *Extractor) extractDOC(ctx context.Context, path string) (Result, error) {
	if !e.runner.Available("antiword") {
		return Result{}, errAntiwordMissing
	}
	out, err := e.runner.Output(ctx, "antiword", path)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: string(out)}, nil
}

// extractWithCat reads OpenDocument text and RTF files.
func extractWithCat(path string) (Result, error) {
	text, err := cat.File(path)
	if err != nil {
		return Result{}, fmt.Errorf("read document: %w", err)
	}
	return Result{Text: text}, nil
}
