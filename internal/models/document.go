// Package models defines the knowledge base entities shared by the ingestion and answering paths.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// ExtractionQuality records how faithfully text was recovered from the source file.
type ExtractionQuality string

const (
	QualityUnknown ExtractionQuality = ""
	QualityFull    ExtractionQuality = "full"
	// QualityLossy marks text recovered by a best-effort scrape; it may be garbled or incomplete.
	QualityLossy ExtractionQuality = "lossy"
)

// Document categories a tenant can file an upload under.
const (
	CategoryManual    = "manual"
	CategoryCatalog   = "catalog"
	CategoryGuide     = "guide"
	CategoryContract  = "contract"
	CategoryTraining  = "training"
	CategoryTechnical = "technical"
	CategoryGeneral   = "general"
)

var categoryLabels = map[string]string{
	CategoryManual:    "User manual",
	CategoryCatalog:   "Product catalog",
	CategoryGuide:     "Guide",
	CategoryContract:  "Contract or terms",
	CategoryTraining:  "Training material",
	CategoryTechnical: "Technical documentation",
	CategoryGeneral:   "General",
}

// CategoryLabel returns a human-readable label for a document category.
// Unknown categories are returned unchanged.
func CategoryLabel(category string) string {
	if label, ok := categoryLabels[category]; ok {
		return label
	}
	return category
}

// KnowledgeDocument is a tenant-uploaded file and its processing state.
// Only the document processor changes Status, ExtractedText, ChunkCount and ErrorMessage.
type KnowledgeDocument struct {
	ID                int64             `json:"id"`
	TenantID          int64             `json:"tenant_id"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	Category          string            `json:"category"`
	FileRef           string            `json:"file_ref"`
	ExtractedText     string            `json:"-"`
	Status            DocumentStatus    `json:"status"`
	ChunkCount        int               `json:"chunk_count"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	ExtractionQuality ExtractionQuality `json:"extraction_quality,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Extension returns the lower-cased file extension of the document's file, without the dot.
func (d *KnowledgeDocument) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(d.FileRef)), ".")
}
