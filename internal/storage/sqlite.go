package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'general',
		file_ref TEXT NOT NULL,
		extracted_text TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		extraction_quality TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_tenant_status ON documents(tenant_id, status);
	CREATE INDEX IF NOT EXISTS idx_documents_file_ref ON documents(file_ref);

	CREATE TABLE IF NOT EXISTS faqs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		published INTEGER NOT NULL DEFAULT 0,
		point_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_faqs_tenant ON faqs(tenant_id, published);

	CREATE TABLE IF NOT EXISTS policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		policy_type TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		published INTEGER NOT NULL DEFAULT 0,
		point_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id, published);

	CREATE TABLE IF NOT EXISTS tenant_configs (
		tenant_id INTEGER PRIMARY KEY,
		business_name TEXT NOT NULL DEFAULT '',
		tone_instructions TEXT NOT NULL DEFAULT '',
		business_hours TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := db.Exec(schema)
	return err
}

const documentColumns = `id, tenant_id, title, description, category, file_ref, extracted_text,
	status, chunk_count, error_message, extraction_quality, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.KnowledgeDocument, error) {
	var doc models.KnowledgeDocument
	var text sql.NullString
	var status, quality string
	err := row.Scan(&doc.ID, &doc.TenantID, &doc.Title, &doc.Description, &doc.Category, &doc.FileRef,
		&text, &status, &doc.ChunkCount, &doc.ErrorMessage, &quality, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.ExtractedText = text.String
	doc.Status = models.DocumentStatus(status)
	doc.ExtractionQuality = models.ExtractionQuality(quality)
	return &doc, nil
}

func nullableText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateDocument inserts a document and sets its ID. An empty status becomes pending.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if doc.Category == "" {
		doc.Category = models.CategoryGeneral
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (tenant_id, title, description, category, file_ref, extracted_text,
			status, chunk_count, error_message, extraction_quality, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.TenantID, doc.Title, doc.Description, doc.Category, doc.FileRef, nullableText(doc.ExtractedText),
		string(doc.Status), doc.ChunkCount, doc.ErrorMessage, string(doc.ExtractionQuality), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return err
	}
	doc.ID, err = result.LastInsertId()
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id int64) (*models.KnowledgeDocument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return doc, err
}

// UpdateDocument writes every mutable column of doc.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	doc.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET title = ?, description = ?, category = ?, file_ref = ?, extracted_text = ?,
			status = ?, chunk_count = ?, error_message = ?, extraction_quality = ?, updated_at = ?
		 WHERE id = ?`,
		doc.Title, doc.Description, doc.Category, doc.FileRef, nullableText(doc.ExtractedText),
		string(doc.Status), doc.ChunkCount, doc.ErrorMessage, string(doc.ExtractionQuality), doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("document %d: %w", doc.ID, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document by ID.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns a tenant's documents ordered by ID. An empty status lists all.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, tenantID int64, status models.DocumentStatus) ([]*models.KnowledgeDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`
	return s.queryDocuments(ctx, query, args...)
}

// FindDocumentsByFileRef returns every document pointing at fileRef.
func (s *SQLiteStorage) FindDocumentsByFileRef(ctx context.Context, fileRef string) ([]*models.KnowledgeDocument, error) {
	return s.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents WHERE file_ref = ? ORDER BY id`, fileRef)
}

func (s *SQLiteStorage) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.KnowledgeDocument, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.KnowledgeDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CreateFaq inserts a FAQ item and sets its ID.
func (s *SQLiteStorage) CreateFaq(ctx context.Context, faq *models.FaqItem) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO faqs (tenant_id, question, answer, category, published, point_id) VALUES (?, ?, ?, ?, ?, ?)`,
		faq.TenantID, faq.Question, faq.Answer, faq.Category, faq.Published, faq.PointID,
	)
	if err != nil {
		return err
	}
	faq.ID, err = result.LastInsertId()
	return err
}

// GetFaq returns a FAQ item by ID.
func (s *SQLiteStorage) GetFaq(ctx context.Context, id int64) (*models.FaqItem, error) {
	var faq models.FaqItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, question, answer, category, published, point_id FROM faqs WHERE id = ?`, id,
	).Scan(&faq.ID, &faq.TenantID, &faq.Question, &faq.Answer, &faq.Category, &faq.Published, &faq.PointID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("faq %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &faq, nil
}

// ListPublishedFaqs returns a tenant's published FAQ items.
func (s *SQLiteStorage) ListPublishedFaqs(ctx context.Context, tenantID int64) ([]*models.FaqItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, question, answer, category, published, point_id
		 FROM faqs WHERE tenant_id = ? AND published = 1 ORDER BY id`, tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faqs []*models.FaqItem
	for rows.Next() {
		var faq models.FaqItem
		if err := rows.Scan(&faq.ID, &faq.TenantID, &faq.Question, &faq.Answer, &faq.Category, &faq.Published, &faq.PointID); err != nil {
			return nil, err
		}
		faqs = append(faqs, &faq)
	}
	return faqs, rows.Err()
}

// SetFaqPointID records the vector point of a FAQ item.
func (s *SQLiteStorage) SetFaqPointID(ctx context.Context, id int64, pointID string) error {
	return s.setPointID(ctx, "faqs", id, pointID)
}

// CreatePolicy inserts a policy item and sets its ID.
func (s *SQLiteStorage) CreatePolicy(ctx context.Context, p *models.PolicyItem) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO policies (tenant_id, title, policy_type, content, published, point_id) VALUES (?, ?, ?, ?, ?, ?)`,
		p.TenantID, p.Title, p.PolicyType, p.Content, p.Published, p.PointID,
	)
	if err != nil {
		return err
	}
	p.ID, err = result.LastInsertId()
	return err
}

// GetPolicy returns a policy item by ID.
func (s *SQLiteStorage) GetPolicy(ctx context.Context, id int64) (*models.PolicyItem, error) {
	var p models.PolicyItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, title, policy_type, content, published, point_id FROM policies WHERE id = ?`, id,
	).Scan(&p.ID, &p.TenantID, &p.Title, &p.PolicyType, &p.Content, &p.Published, &p.PointID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("policy %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPublishedPolicies returns a tenant's published policy items.
func (s *SQLiteStorage) ListPublishedPolicies(ctx context.Context, tenantID int64) ([]*models.PolicyItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, title, policy_type, content, published, point_id
		 FROM policies WHERE tenant_id = ? AND published = 1 ORDER BY id`, tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*models.PolicyItem
	for rows.Next() {
		var p models.PolicyItem
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Title, &p.PolicyType, &p.Content, &p.Published, &p.PointID); err != nil {
			return nil, err
		}
		policies = append(policies, &p)
	}
	return policies, rows.Err()
}

// SetPolicyPointID records the vector point of a policy item.
func (s *SQLiteStorage) SetPolicyPointID(ctx context.Context, id int64, pointID string) error {
	return s.setPointID(ctx, "policies", id, pointID)
}

func (s *SQLiteStorage) setPointID(ctx context.Context, table string, id int64, pointID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET point_id = ? WHERE id = ?`, pointID, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

// GetTenantConfig returns the business context of a tenant.
func (s *SQLiteStorage) GetTenantConfig(ctx context.Context, tenantID int64) (*models.TenantConfig, error) {
	var c models.TenantConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, business_name, tone_instructions, business_hours, contact_email, contact_phone
		 FROM tenant_configs WHERE tenant_id = ?`, tenantID,
	).Scan(&c.TenantID, &c.BusinessName, &c.ToneInstructions, &c.BusinessHours, &c.ContactEmail, &c.ContactPhone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant config %d: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveTenantConfig inserts or replaces the business context of a tenant.
func (s *SQLiteStorage) SaveTenantConfig(ctx context.Context, c *models.TenantConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_configs (tenant_id, business_name, tone_instructions, business_hours, contact_email, contact_phone)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET business_name = excluded.business_name,
			tone_instructions = excluded.tone_instructions, business_hours = excluded.business_hours,
			contact_email = excluded.contact_email, contact_phone = excluded.contact_phone`,
		c.TenantID, c.BusinessName, c.ToneInstructions, c.BusinessHours, c.ContactEmail, c.ContactPhone,
	)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
