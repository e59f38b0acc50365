// Package storage defines the repositories for tenant knowledge and their SQLite implementation.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DocumentRepository persists uploaded documents and their processing state.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	GetDocument(ctx context.Context, id int64) (*models.KnowledgeDocument, error)
	UpdateDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	DeleteDocument(ctx context.Context, id int64) error
	// ListDocuments returns a tenant's documents, optionally restricted to one status.
	ListDocuments(ctx context.Context, tenantID int64, status models.DocumentStatus) ([]*models.KnowledgeDocument, error)
	FindDocumentsByFileRef(ctx context.Context, fileRef string) ([]*models.KnowledgeDocument, error)
}

// FaqRepository persists FAQ items.
type FaqRepository interface {
	CreateFaq(ctx context.Context, faq *models.FaqItem) error
	GetFaq(ctx context.Context, id int64) (*models.FaqItem, error)
	ListPublishedFaqs(ctx context.Context, tenantID int64) ([]*models.FaqItem, error)
	// SetFaqPointID records the vector point for the item; "" clears it.
	SetFaqPointID(ctx context.Context, id int64, pointID string) error
}

// PolicyRepository persists policy items.
type PolicyRepository interface {
	CreatePolicy(ctx context.Context, policy *models.PolicyItem) error
	GetPolicy(ctx context.Context, id int64) (*models.PolicyItem, error)
	ListPublishedPolicies(ctx context.Context, tenantID int64) ([]*models.PolicyItem, error)
	SetPolicyPointID(ctx context.Context, id int64, pointID string) error
}

// TenantConfigReader reads the business context of a tenant.
type TenantConfigReader interface {
	GetTenantConfig(ctx context.Context, tenantID int64) (*models.TenantConfig, error)
}

// Storage is the full set of repositories backed by one database.
type Storage interface {
	DocumentRepository
	FaqRepository
	PolicyRepository
	TenantConfigReader
	SaveTenantConfig(ctx context.Context, cfg *models.TenantConfig) error
	Close() error
}
