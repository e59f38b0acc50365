package watcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/queue"
)

// RefMapper lists the file references that may name a local path.
type RefMapper interface {
	Refs(path string) []string
}

// DocumentFinder looks up documents by file reference.
type DocumentFinder interface {
	FindDocumentsByFileRef(ctx context.Context, fileRef string) ([]*models.KnowledgeDocument, error)
}

// Uploads turns changed files into processing jobs for every document that uses them.
type Uploads struct {
	refs      RefMapper
	documents DocumentFinder
	publisher queue.Publisher
	logger    *zap.Logger
}

// NewUploads returns an Uploads publishing to publisher.
func NewUploads(refs RefMapper, documents DocumentFinder, publisher queue.Publisher, logger *zap.Logger) *Uploads {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploads{refs: refs, documents: documents, publisher: publisher, logger: logger}
}

// FileChanged publishes a job per document referencing path and returns how many were queued.
func (u *Uploads) FileChanged(ctx context.Context, path string) int {
	queued := 0
	seen := make(map[int64]bool)
	for _, ref := range u.refs.Refs(path) {
		docs, err := u.documents.FindDocumentsByFileRef(ctx, ref)
		if err != nil {
			u.logger.Error("document lookup failed", zap.String("file_ref", ref), zap.Error(err))
			continue
		}
		for _, doc := range docs {
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			job := queue.Job{DocumentID: doc.ID, TenantID: doc.TenantID, Reason: queue.ReasonChanged}
			if err := u.publisher.Publish(ctx, job); err != nil {
				u.logger.Error("could not queue document", zap.Int64("document_id", doc.ID), zap.Error(err))
				continue
			}
			queued++
		}
	}
	if queued == 0 {
		u.logger.Debug("no document references changed file", zap.String("path", path))
	}
	return queued
}
