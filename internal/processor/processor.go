// Package processor turns uploaded tenant documents into indexed knowledge chunks.
package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// Failure messages recorded on a document.
const (
	MsgFileNotFound    = "file not found"
	MsgNoTextExtracted = "could not extract text from document"
)

// FileResolver maps a stored file reference to a readable local path.
type FileResolver interface {
	Resolve(ref string) (string, error)
}

// TextExtractor recovers plain text from a file.
type TextExtractor interface {
	Extract(ctx context.Context, path, format string) (extract.Result, error)
}

// Processor runs the ingestion pipeline for one document at a time.
// Calls for the same document must be serialized by the caller.
type Processor struct {
	documents storage.DocumentRepository
	files     FileResolver
	extractor TextExtractor
	indexer   *indexer.Indexer
	logger    *zap.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor returns a Processor.
func NewProcessor(documents storage.DocumentRepository, files FileResolver, extractor TextExtractor, idx *indexer.Indexer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		documents: documents,
		files:     files,
		extractor: extractor,
		indexer:   idx,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts, chunks and indexes the document with the given id.
// The outcome is persisted on the document: completed with the number of indexed
// chunks, or failed with a message. The returned error mirrors a failed outcome.
func (p *Processor) Process(ctx context.Context, docID int64) error {
	doc, err := p.documents.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document %d: %w", docID, err)
	}

	doc.Status = models.StatusProcessing
	doc.ErrorMessage = ""
	if err := p.documents.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("mark document %d processing: %w", docID, err)
	}

	indexed, err := p.run(ctx, doc)
	if err != nil {
		p.fail(ctx, doc, err)
		return err
	}

	doc.Status = models.StatusCompleted
	doc.ChunkCount = indexed
	doc.ErrorMessage = ""
	if err := p.documents.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("mark document %d completed: %w", docID, err)
	}
	p.logger.Info("document processed",
		zap.Int64("document_id", doc.ID),
		zap.Int64("tenant_id", doc.TenantID),
		zap.Int("chunks", indexed))
	return nil
}

func (p *Processor) run(ctx context.Context, doc *models.KnowledgeDocument) (indexed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	path, err := p.files.Resolve(doc.FileRef)
	if err != nil {
		p.logger.Warn("document file missing", zap.Int64("document_id", doc.ID), zap.String("file_ref", doc.FileRef), zap.Error(err))
		return 0, errors.New(MsgFileNotFound)
	}

	res, err := p.extractor.Extract(ctx, path, doc.Extension())
	if err != nil {
		return 0, err
	}
	if res.Text == "" {
		return 0, errors.New(MsgNoTextExtracted)
	}
	if res.Quality == models.QualityLossy {
		p.logger.Warn("lossy text extraction",
			zap.Int64("document_id", doc.ID),
			zap.String("format", doc.Extension()))
	}

	doc.ExtractedText = res.Text
	doc.ExtractionQuality = res.Quality
	if err := p.documents.UpdateDocument(ctx, doc); err != nil {
		return 0, fmt.Errorf("save extracted text: %w", err)
	}

	chunks := p.indexer.Chunker().Chunk(res.Text)
	if len(chunks) == 0 {
		return 0, indexer.ErrChunkingEmpty
	}
	indexed = p.indexer.IndexDocumentChunks(ctx, doc, chunks)
	if indexed == 0 {
		p.logger.Warn("no chunks indexed",
			zap.Int64("document_id", doc.ID),
			zap.Int64("tenant_id", doc.TenantID),
			zap.Int("chunks", len(chunks)))
	}
	return indexed, nil
}

func (p *Processor) fail(ctx context.Context, doc *models.KnowledgeDocument, cause error) {
	doc.Status = models.StatusFailed
	doc.ErrorMessage = cause.Error()
	p.logger.Error("document processing failed",
		zap.Int64("document_id", doc.ID),
		zap.Int64("tenant_id", doc.TenantID),
		zap.Error(cause))
	if err := p.documents.UpdateDocument(ctx, doc); err != nil {
		p.logger.Error("could not record failure", zap.Int64("document_id", doc.ID), zap.Error(err))
	}
}
