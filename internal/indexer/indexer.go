package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// ErrChunkingEmpty is returned when a document's text produced no chunks.
var ErrChunkingEmpty = errors.New("no chunks generated")

// DefaultCollection is the vector collection holding every tenant's knowledge.
const DefaultCollection = "tenant_knowledge"

// Payload values identifying the kind of knowledge a point holds.
const (
	TypeFaq           = "faq"
	TypePolicy        = "policy"
	TypeDocumentChunk = "document_chunk"

	EntityFaq      = "tenant_faq"
	EntityPolicy   = "tenant_policy"
	EntityDocument = "tenant_document"
)

// previewLength bounds the text copied into payloads for display.
const previewLength = 500

// Indexer keeps the vector store in sync with a tenant's FAQs, policies and documents.
// Item-level failures are logged and reported through return values; they never abort a batch.
type Indexer struct {
	embedder   embedding.Embedder
	store      vector.Store
	collection string
	chunker    *Chunker
	faqs       storage.FaqRepository
	policies   storage.PolicyRepository
	documents  storage.DocumentRepository
	logger     *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithCollection overrides DefaultCollection.
func WithCollection(name string) IndexerOption {
	return func(idx *Indexer) {
		if name != "" {
			idx.collection = name
		}
	}
}

// WithChunker replaces the default chunker used by ReindexAll.
func WithChunker(c *Chunker) IndexerOption {
	return func(idx *Indexer) { idx.chunker = c }
}

// WithRepositories sets the repositories used to record point IDs and to reindex.
func WithRepositories(faqs storage.FaqRepository, policies storage.PolicyRepository, documents storage.DocumentRepository) IndexerOption {
	return func(idx *Indexer) {
		idx.faqs = faqs
		idx.policies = policies
		idx.documents = documents
	}
}

// NewIndexer creates an indexer writing embeddings from embedder into store.
func NewIndexer(embedder embedding.Embedder, store vector.Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:   embedder,
		store:      store,
		collection: DefaultCollection,
		chunker:    NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Collection returns the vector collection name.
func (idx *Indexer) Collection() string { return idx.collection }

// Chunker returns the chunker used for documents.
func (idx *Indexer) Chunker() *Chunker { return idx.chunker }

// EnsureCollection creates the collection sized for the embedder.
func (idx *Indexer) EnsureCollection(ctx context.Context) error {
	return idx.store.EnsureCollection(ctx, idx.collection, idx.embedder.Dimensions())
}

// FaqPointName returns the logical point name of a FAQ item.
func FaqPointName(id int64) string { return "faq_" + strconv.FormatInt(id, 10) }

// PolicyPointName returns the logical point name of a policy item.
func PolicyPointName(id int64) string { return "policy_" + strconv.FormatInt(id, 10) }

// ChunkPointName returns the logical point name of a document chunk.
func ChunkPointName(docID int64, index int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", docID, index)
}

// IndexFaq embeds a published FAQ item and upserts its point. It returns false, without
// writing anything, for unpublished items and on any embedding or store failure.
func (idx *Indexer) IndexFaq(ctx context.Context, faq *models.FaqItem) bool {
	log := idx.logger.With(zap.Int64("faq_id", faq.ID), zap.Int64("tenant_id", faq.TenantID))
	if !faq.Published {
		log.Info("skipping unpublished faq")
		return false
	}

	text := faqEmbedText(faq)
	name := FaqPointName(faq.ID)
	payload := map[string]any{
		"type":        TypeFaq,
		"entity_type": EntityFaq,
		"entity_id":   faq.ID,
		"tenant_id":   faq.TenantID,
		"category":    faq.Category,
		"question":    faq.Question,
		"answer":      utils.Clip(faq.Answer, previewLength),
		"point_name":  name,
	}
	pointID, err := idx.upsert(ctx, name, text, payload)
	if err != nil {
		log.Error("failed to index faq", zap.Error(err))
		return false
	}
	faq.PointID = pointID
	if idx.faqs != nil {
		if err := idx.faqs.SetFaqPointID(ctx, faq.ID, pointID); err != nil {
			log.Warn("failed to record faq point id", zap.Error(err))
		}
	}
	log.Debug("faq indexed", zap.String("point_id", pointID))
	return true
}

// IndexPolicy embeds a published policy item and upserts its point.
func (idx *Indexer) IndexPolicy(ctx context.Context, policy *models.PolicyItem) bool {
	log := idx.logger.With(zap.Int64("policy_id", policy.ID), zap.Int64("tenant_id", policy.TenantID))
	if !policy.Published {
		log.Info("skipping unpublished policy")
		return false
	}

	text := policyEmbedText(policy)
	name := PolicyPointName(policy.ID)
	payload := map[string]any{
		"type":            TypePolicy,
		"entity_type":     EntityPolicy,
		"entity_id":       policy.ID,
		"tenant_id":       policy.TenantID,
		"category":        policy.PolicyType,
		"title":           policy.Title,
		"policy_type":     policy.PolicyType,
		"content_preview": utils.Clip(policy.Content, previewLength),
		"point_name":      name,
	}
	pointID, err := idx.upsert(ctx, name, text, payload)
	if err != nil {
		log.Error("failed to index policy", zap.Error(err))
		return false
	}
	policy.PointID = pointID
	if idx.policies != nil {
		if err := idx.policies.SetPolicyPointID(ctx, policy.ID, pointID); err != nil {
			log.Warn("failed to record policy point id", zap.Error(err))
		}
	}
	log.Debug("policy indexed", zap.String("point_id", pointID))
	return true
}

// IndexDocumentChunks replaces the document's points with one per chunk and returns how
// many were written. The old points are removed first so a shorter re-extraction leaves
// no stale chunks behind. A failed chunk is skipped; a failed delete aborts with 0.
func (idx *Indexer) IndexDocumentChunks(ctx context.Context, doc *models.KnowledgeDocument, chunks []string) int {
	log := idx.logger.With(zap.Int64("document_id", doc.ID), zap.Int64("tenant_id", doc.TenantID))
	if err := idx.store.DeleteByFilter(ctx, idx.collection, documentFilter(doc.ID)); err != nil {
		log.Error("failed to remove previous chunks", zap.Error(err))
		return 0
	}

	indexed := 0
	for i, chunk := range chunks {
		name := ChunkPointName(doc.ID, i)
		payload := map[string]any{
			"type":           TypeDocumentChunk,
			"entity_type":    EntityDocument,
			"entity_id":      doc.ID,
			"tenant_id":      doc.TenantID,
			"category":       doc.Category,
			"document_title": doc.Title,
			"chunk_index":    i,
			"chunk_content":  utils.Clip(chunk, previewLength),
			"point_name":     name,
		}
		if _, err := idx.upsert(ctx, name, chunkEmbedText(doc, chunk, i), payload); err != nil {
			log.Warn("failed to index chunk", zap.Int("chunk_index", i), zap.Error(err))
			continue
		}
		indexed++
	}
	log.Info("document chunks indexed", zap.Int("indexed", indexed), zap.Int("total", len(chunks)))
	return indexed
}

// DeleteFaq removes the FAQ's point and clears the recorded ID. Items without a
// recorded point are already unindexed.
func (idx *Indexer) DeleteFaq(ctx context.Context, faq *models.FaqItem) error {
	if faq.PointID == "" {
		return nil
	}
	if err := idx.store.DeleteByIDs(ctx, idx.collection, []string{faq.PointID}); err != nil {
		return fmt.Errorf("delete faq %d: %w", faq.ID, err)
	}
	faq.PointID = ""
	if idx.faqs != nil {
		if err := idx.faqs.SetFaqPointID(ctx, faq.ID, ""); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("clear faq %d point id: %w", faq.ID, err)
		}
	}
	return nil
}

// DeletePolicy removes the policy's point and clears the recorded ID.
func (idx *Indexer) DeletePolicy(ctx context.Context, policy *models.PolicyItem) error {
	if policy.PointID == "" {
		return nil
	}
	if err := idx.store.DeleteByIDs(ctx, idx.collection, []string{policy.PointID}); err != nil {
		return fmt.Errorf("delete policy %d: %w", policy.ID, err)
	}
	policy.PointID = ""
	if idx.policies != nil {
		if err := idx.policies.SetPolicyPointID(ctx, policy.ID, ""); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("clear policy %d point id: %w", policy.ID, err)
		}
	}
	return nil
}

// DeleteDocument removes every chunk point of a document.
func (idx *Indexer) DeleteDocument(ctx context.Context, docID int64) error {
	if err := idx.store.DeleteByFilter(ctx, idx.collection, documentFilter(docID)); err != nil {
		return fmt.Errorf("delete document %d chunks: %w", docID, err)
	}
	return nil
}

// ReindexReport counts the outcome of ReindexAll.
type ReindexReport struct {
	FaqsIndexed      int `json:"faqs_indexed"`
	FaqsFailed       int `json:"faqs_failed"`
	PoliciesIndexed  int `json:"policies_indexed"`
	PoliciesFailed   int `json:"policies_failed"`
	DocumentsIndexed int `json:"documents_indexed"`
	DocumentsFailed  int `json:"documents_failed"`
	ChunksIndexed    int `json:"chunks_indexed"`
}

// ReindexAll re-indexes every published FAQ and policy and every completed document
// of a tenant. Documents are re-chunked from their stored text. Only a failure to list
// an item kind is returned as an error; item failures are counted.
func (idx *Indexer) ReindexAll(ctx context.Context, tenantID int64) (ReindexReport, error) {
	var report ReindexReport
	if idx.faqs == nil || idx.policies == nil || idx.documents == nil {
		return report, errors.New("reindex requires repositories")
	}

	faqs, err := idx.faqs.ListPublishedFaqs(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("list faqs: %w", err)
	}
	for _, faq := range faqs {
		if idx.IndexFaq(ctx, faq) {
			report.FaqsIndexed++
		} else {
			report.FaqsFailed++
		}
	}

	policies, err := idx.policies.ListPublishedPolicies(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("list policies: %w", err)
	}
	for _, p := range policies {
		if idx.IndexPolicy(ctx, p) {
			report.PoliciesIndexed++
		} else {
			report.PoliciesFailed++
		}
	}

	docs, err := idx.documents.ListDocuments(ctx, tenantID, models.StatusCompleted)
	if err != nil {
		return report, fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		chunks := idx.chunker.Chunk(doc.ExtractedText)
		n := 0
		if len(chunks) > 0 {
			n = idx.IndexDocumentChunks(ctx, doc, chunks)
		}
		if n == 0 {
			report.DocumentsFailed++
			continue
		}
		report.DocumentsIndexed++
		report.ChunksIndexed += n
	}

	idx.logger.Info("tenant reindexed",
		zap.Int64("tenant_id", tenantID),
		zap.Int("faqs", report.FaqsIndexed),
		zap.Int("policies", report.PoliciesIndexed),
		zap.Int("documents", report.DocumentsIndexed),
		zap.Int("failed", report.FaqsFailed+report.PoliciesFailed+report.DocumentsFailed))
	return report, nil
}

func (idx *Indexer) upsert(ctx context.Context, name, text string, payload map[string]any) (string, error) {
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return "", err
	}
	if len(vec) == 0 {
		return "", fmt.Errorf("%w: empty vector", embedding.ErrUnavailable)
	}
	id := vector.PointID(name)
	if err := idx.store.Upsert(ctx, idx.collection, []vector.Point{{ID: id, Vector: vec, Payload: payload}}); err != nil {
		return "", err
	}
	return id, nil
}

func documentFilter(docID int64) vector.Filter {
	return vector.Match("entity_type", EntityDocument, "entity_id", docID)
}

func faqEmbedText(faq *models.FaqItem) string {
	var b strings.Builder
	if faq.Category != "" {
		b.WriteString("Category: " + faq.Category + "\n")
	}
	b.WriteString("Question: " + faq.Question + "\n")
	b.WriteString("Answer: " + faq.Answer)
	return b.String()
}

func policyEmbedText(p *models.PolicyItem) string {
	var b strings.Builder
	b.WriteString("Policy: " + p.Title + "\n")
	if p.PolicyType != "" {
		b.WriteString("Type: " + p.PolicyType + "\n")
	}
	b.WriteString(p.Content)
	return b.String()
}

func chunkEmbedText(doc *models.KnowledgeDocument, chunk string, index int) string {
	lines := []string{
		"Document: " + doc.Title,
		"Category: " + models.CategoryLabel(doc.Category),
	}
	if doc.Description != "" {
		lines = append(lines, "Description: "+doc.Description)
	}
	lines = append(lines, fmt.Sprintf("--- Content (part %d) ---", index+1), chunk)
	return strings.Join(lines, "\n")
}
