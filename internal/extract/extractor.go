// Package extract provides text extraction from uploaded knowledge documents.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// ErrUnsupportedFormat is returned for file formats the extractor does not handle.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Error reports a failed extraction of a single file.
type Error struct {
	Path   string
	Format string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", filepath.Base(e.Path), e.Format, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the text recovered from a file and how faithfully it was recovered.
type Result struct {
	Text    string
	Quality models.ExtractionQuality
}

// Formats lists the file formats Extract accepts.
var Formats = []string{"txt", "md", "pdf", "doc", "docx", "odt", "rtf", "xlsx", "html", "htm"}

// Supported reports whether format (with or without a leading dot) can be extracted.
func Supported(format string) bool {
	format = normalizeFormat(format)
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Extractor extracts plain text from document files.
type Extractor struct {
	runner CommandRunner
	logger *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets a logger for extraction fallbacks and warnings.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// WithCommandRunner replaces the runner used for pdftotext and antiword.
func WithCommandRunner(r CommandRunner) ExtractorOption {
	return func(e *Extractor) { e.runner = r }
}

// NewExtractor returns a new Extractor that shells out to system tools when they are installed.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{runner: execRunner{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the file at path and returns its text content. format is the file
// extension (with or without dot); when empty it is taken from path.
// An empty Text with a nil error means the file held no recoverable text.
func (e *Extractor) Extract(ctx context.Context, path, format string) (Result, error) {
	if format == "" {
		format = filepath.Ext(path)
	}
	format = normalizeFormat(format)
	if !Supported(format) {
		return Result{}, &Error{Path: path, Format: format, Err: ErrUnsupportedFormat}
	}
	if _, err := os.Stat(path); err != nil {
		return Result{}, &Error{Path: path, Format: format, Err: err}
	}

	var (
		res Result
		err error
	)
	switch format {
	case "txt", "md":
		res, err = fromBytes(path, extractPlain)
	case "pdf":
		res, err = e.extractPDFFile(ctx, path)
	case "docx":
		res, err = fromBytes(path, extractDOCX)
	case "doc":
		res, err = e.extractDOC(ctx, path)
	case "odt", "rtf":
		res, err = extractWithCat(path)
	case "xlsx":
		res, err = fromBytes(path, extractExcel)
	case "html", "htm":
		res, err = fromBytes(path, extractHTML)
	}
	if err != nil {
		return Result{}, &Error{Path: path, Format: format, Err: err}
	}
	res.Text = strings.TrimSpace(res.Text)
	if res.Text != "" && res.Quality == models.QualityUnknown {
		res.Quality = models.QualityFull
	}
	return res, nil
}

func fromBytes(path string, fn func([]byte) (string, error)) (Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}
	text, err := fn(content)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}

func normalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}
