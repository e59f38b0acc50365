package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/bot"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/queue"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

type stubModel struct{}

func (stubModel) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, string, error) {
	return "stub reply", "stub", nil
}

type capturePublisher struct{ jobs []queue.Job }

func (p *capturePublisher) Publish(ctx context.Context, job queue.Job) error {
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type testServer struct {
	handler http.Handler
	db      *storage.SQLiteStorage
	store   *vector.MemoryStore
	idx     *indexer.Indexer
	pub     *capturePublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "kb.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	embedder := embedding.NewMockEmbedder(8)
	store := vector.NewMemoryStore()
	idx := indexer.NewIndexer(embedder, store, indexer.WithRepositories(db, db, db), indexer.WithLogger(zap.NewNop()))
	if err := idx.EnsureCollection(context.Background()); err != nil {
		t.Fatal(err)
	}
	b := bot.NewBot(embedder, store, stubModel{}, bot.WithTenants(db), bot.WithLogger(zap.NewNop()))
	pub := &capturePublisher{}
	srv := NewServer(b, idx, db, pub, &config.ServerConfig{Port: 8080}, zap.NewNop())
	return &testServer{handler: srv.Handler(), db: db, store: store, idx: idx, pub: pub}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleChat(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	if err := ts.db.SaveTenantConfig(ctx, &models.TenantConfig{TenantID: 3, BusinessName: "Olive Oil Co", ContactEmail: "help@olive.test"}); err != nil {
		t.Fatal(err)
	}

	if w := ts.do(t, http.MethodPost, "/api/v1/chat", "{not json"); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"message": "hi"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing tenant: got %d", w.Code)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"message": "Where is my parcel?", "tenant_id": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var answer models.Answer
	decode(t, w, &answer)
	if !answer.Escalate || answer.Tier != models.TierEscalate || answer.SessionID == "" {
		t.Errorf("empty knowledge base should escalate: %+v", answer)
	}
	if !bytes.Contains([]byte(answer.Text), []byte("help@olive.test")) {
		t.Errorf("escalation should carry the tenant contact: %q", answer.Text)
	}
}

func TestHandleProcessDocument(t *testing.T) {
	ts := newTestServer(t)
	doc := &models.KnowledgeDocument{TenantID: 4, Title: "Manual", FileRef: "private://manual.pdf"}
	if err := ts.db.CreateDocument(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/documents/"+itoa(doc.ID)+"/process", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d", w.Code)
	}
	if len(ts.pub.jobs) != 1 || ts.pub.jobs[0].DocumentID != doc.ID || ts.pub.jobs[0].TenantID != 4 {
		t.Errorf("jobs = %+v", ts.pub.jobs)
	}

	if w := ts.do(t, http.MethodPost, "/api/v1/documents/999/process", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown document: got %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/v1/documents/abc/process", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/documents/"+itoa(doc.ID), nil)
	var got models.KnowledgeDocument
	decode(t, w, &got)
	if got.Status != models.StatusPending || got.Title != "Manual" {
		t.Errorf("document = %+v", got)
	}
}

func TestHandleFaqIndexing(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	published := &models.FaqItem{TenantID: 1, Question: "Do you ship abroad?", Answer: "Yes.", Published: true}
	draft := &models.FaqItem{TenantID: 1, Question: "Draft", Answer: "No."}
	for _, f := range []*models.FaqItem{published, draft} {
		if err := ts.db.CreateFaq(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	faqPoints := func() int {
		return ts.store.Count(ts.idx.Collection(), vector.Match("entity_type", indexer.EntityFaq))
	}

	w := ts.do(t, http.MethodPost, "/api/v1/faqs/"+itoa(published.ID)+"/index", nil)
	var out map[string]any
	decode(t, w, &out)
	if w.Code != http.StatusOK || out["status"] != "indexed" || out["point_id"] == "" {
		t.Fatalf("index: %d %v", w.Code, out)
	}
	if faqPoints() != 1 {
		t.Errorf("faq points = %d", faqPoints())
	}

	w = ts.do(t, http.MethodPost, "/api/v1/faqs/"+itoa(draft.ID)+"/index", nil)
	out = nil
	decode(t, w, &out)
	if out["status"] != "skipped" || faqPoints() != 1 {
		t.Errorf("draft: %v, points = %d", out, faqPoints())
	}

	if w := ts.do(t, http.MethodPost, "/api/v1/faqs/404/index", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing faq: got %d", w.Code)
	}

	w = ts.do(t, http.MethodDelete, "/api/v1/faqs/"+itoa(published.ID)+"/index", nil)
	if w.Code != http.StatusOK || faqPoints() != 0 {
		t.Errorf("delete: %d, points = %d", w.Code, faqPoints())
	}
}

func TestHandlePolicyIndexingAndReindex(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	policy := &models.PolicyItem{TenantID: 6, Title: "Returns", PolicyType: "returns", Content: "30 days.", Published: true}
	if err := ts.db.CreatePolicy(ctx, policy); err != nil {
		t.Fatal(err)
	}
	if err := ts.db.CreateFaq(ctx, &models.FaqItem{TenantID: 6, Question: "q", Answer: "a", Published: true}); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/policies/"+itoa(policy.ID)+"/index", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("index policy: got %d", w.Code)
	}
	w = ts.do(t, http.MethodDelete, "/api/v1/policies/"+itoa(policy.ID)+"/index", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete policy: got %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/tenants/6/reindex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reindex: got %d", w.Code)
	}
	var report indexer.ReindexReport
	decode(t, w, &report)
	if report.FaqsIndexed != 1 || report.PoliciesIndexed != 1 || report.FaqsFailed+report.PoliciesFailed != 0 {
		t.Errorf("report = %+v", report)
	}
	if n := ts.store.Count(ts.idx.Collection(), vector.Match("tenant_id", int64(6))); n != 2 {
		t.Errorf("tenant 6 points = %d, want 2", n)
	}
}

func TestHandleIndex_UnpublishedItemsLeaveTheIndex(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	faq := &models.FaqItem{TenantID: 3, Question: "Do you gift wrap?", Answer: "Not anymore."}
	policy := &models.PolicyItem{TenantID: 3, Title: "Gift wrap", PolicyType: "general", Content: "Discontinued."}
	if err := ts.db.CreateFaq(ctx, faq); err != nil {
		t.Fatal(err)
	}
	if err := ts.db.CreatePolicy(ctx, policy); err != nil {
		t.Fatal(err)
	}
	// Index published copies so the stored drafts carry a point ID, as if they were
	// unpublished after indexing.
	wasFaq, wasPolicy := *faq, *policy
	wasFaq.Published, wasPolicy.Published = true, true
	if !ts.idx.IndexFaq(ctx, &wasFaq) || !ts.idx.IndexPolicy(ctx, &wasPolicy) {
		t.Fatal("seeding the index failed")
	}
	tenantPoints := func() int {
		return ts.store.Count(ts.idx.Collection(), vector.Match("tenant_id", int64(3)))
	}
	if tenantPoints() != 2 {
		t.Fatalf("tenant points = %d, want 2", tenantPoints())
	}

	tests := []struct {
		name string
		path string
		left int
	}{
		{"faq", "/api/v1/faqs/" + itoa(faq.ID) + "/index", 1},
		{"policy", "/api/v1/policies/" + itoa(policy.ID) + "/index", 0},
	}
	for _, tt := range tests {
		w := ts.do(t, http.MethodPost, tt.path, nil)
		var out map[string]any
		decode(t, w, &out)
		if w.Code != http.StatusOK || out["status"] != "skipped" || out["removed"] != true {
			t.Errorf("%s: %d %v", tt.name, w.Code, out)
		}
		if n := tenantPoints(); n != tt.left {
			t.Errorf("%s: tenant points = %d, want %d", tt.name, n, tt.left)
		}
	}

	stored, err := ts.db.GetFaq(ctx, faq.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PointID != "" {
		t.Errorf("faq point id = %q, want cleared", stored.PointID)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/faqs/"+itoa(faq.ID)+"/index", nil)
	var out map[string]any
	decode(t, w, &out)
	if out["status"] != "skipped" || out["removed"] != false {
		t.Errorf("second call: %v", out)
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
