package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// fakeStore returns fixed hits and records the last search.
type fakeStore struct {
	vector.Store
	hits []vector.Hit
	err  error
	last vector.SearchRequest
}

func (f *fakeStore) Search(ctx context.Context, collection string, req vector.SearchRequest) ([]vector.Hit, error) {
	f.last = req
	return f.hits, f.err
}

type fakeModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]llm.Message
}

func (f *fakeModel) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return llm.FallbackText, "", f.err
	}
	return f.reply, "fake", nil
}

type fakeTenants map[int64]*models.TenantConfig

func (f fakeTenants) GetTenantConfig(ctx context.Context, tenantID int64) (*models.TenantConfig, error) {
	if cfg, ok := f[tenantID]; ok {
		return cfg, nil
	}
	return nil, storage.ErrNotFound
}

func faqHit(id int64, score float64, question string) vector.Hit {
	return vector.Hit{
		ID:    vector.PointID("faq_" + question),
		Score: score,
		Payload: map[string]any{
			"type": "faq", "entity_id": id, "tenant_id": int64(1),
			"question": question, "answer": "Answer to " + question, "category": "general",
		},
	}
}

func policyHit(id int64, score float64, title string) vector.Hit {
	return vector.Hit{
		ID:    vector.PointID("policy_" + title),
		Score: score,
		Payload: map[string]any{
			"type": "policy", "entity_id": id, "tenant_id": int64(1),
			"title": title, "content_preview": "We accept returns within 30 days.", "policy_type": "returns",
		},
	}
}

func newTestBot(store vector.Store, model ChatModel, opts ...BotOption) *Bot {
	opts = append([]BotOption{WithLogger(zap.NewNop())}, opts...)
	return NewBot(embedding.NewMockEmbedder(16), store, model, opts...)
}

func TestBot_Tiers(t *testing.T) {
	tests := []struct {
		name         string
		hits         []vector.Hit
		want         models.Tier
		wantLLMCalls int
		wantEscalate bool
		wantHedge    bool
	}{
		{"grounded at threshold", []vector.Hit{faqHit(1, 0.75, "Do you ship abroad?")}, models.TierGrounded, 1, false, false},
		{"just below grounded", []vector.Hit{faqHit(1, 0.749999, "Do you ship abroad?")}, models.TierLowConfidence, 1, false, true},
		{"below escalation", []vector.Hit{faqHit(1, 0.54, "Do you ship abroad?")}, models.TierEscalate, 0, true, false},
		{"no hits", nil, models.TierEscalate, 0, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{reply: "We ship to the EU."}
			b := newTestBot(&fakeStore{hits: tt.hits}, model)

			a := b.Chat(context.Background(), models.ChatRequest{Message: "Can I get it shipped to France?", TenantID: 1})
			if a.Tier != tt.want {
				t.Errorf("tier = %s, want %s", a.Tier, tt.want)
			}
			if len(model.calls) != tt.wantLLMCalls {
				t.Errorf("llm calls = %d, want %d", len(model.calls), tt.wantLLMCalls)
			}
			if a.Escalate != tt.wantEscalate {
				t.Errorf("escalate = %v", a.Escalate)
			}
			if tt.wantLLMCalls > 0 {
				msgs := model.calls[0]
				user := msgs[len(msgs)-1].Content
				if hedged := strings.Contains(user, "INTERNAL INSTRUCTION"); hedged != tt.wantHedge {
					t.Errorf("hedge in user message = %v, want %v", hedged, tt.wantHedge)
				}
				if !strings.Contains(msgs[0].Content, "<knowledge_base>") {
					t.Error("system prompt should carry the knowledge base")
				}
				if a.Text != "We ship to the EU." || len(a.Sources) != 1 {
					t.Errorf("answer = %+v", a)
				}
			}
			if a.SessionID == "" {
				t.Error("session id should be set")
			}
		})
	}
}

func TestBot_SearchIsTenantScoped(t *testing.T) {
	store := vector.NewMemoryStore()
	emb := embedding.NewMockEmbedder(16)
	ctx := context.Background()
	if err := store.EnsureCollection(ctx, "tenant_knowledge", 16); err != nil {
		t.Fatal(err)
	}
	question := "How do I reset my password?"
	vec, _ := emb.Embed(ctx, question)
	err := store.Upsert(ctx, "tenant_knowledge", []vector.Point{{
		ID:      vector.PointID("faq_1"),
		Vector:  vec,
		Payload: map[string]any{"type": "faq", "entity_id": int64(1), "tenant_id": int64(1), "question": question, "answer": "Use the link."},
	}})
	if err != nil {
		t.Fatal(err)
	}
	b := NewBot(emb, store, &fakeModel{reply: "Use the link."}, WithLogger(zap.NewNop()))

	if a := b.Chat(ctx, models.ChatRequest{Message: question, TenantID: 1}); a.Tier != models.TierGrounded {
		t.Errorf("owning tenant: tier = %s (%.3f)", a.Tier, a.TopScore)
	}
	a := b.Chat(ctx, models.ChatRequest{Message: question, TenantID: 2})
	if a.Tier != models.TierEscalate || len(a.Sources) != 0 {
		t.Errorf("other tenant must not see tenant 1 knowledge: %+v", a)
	}
}

func TestBot_SearchRequest(t *testing.T) {
	store := &fakeStore{}
	b := newTestBot(store, &fakeModel{})
	b.Chat(context.Background(), models.ChatRequest{Message: "hello", TenantID: 42})

	if store.last.Limit != DefaultTopK || store.last.ScoreFloor != 0 {
		t.Errorf("request = %+v", store.last)
	}
	if len(store.last.Filter.Must) != 1 || store.last.Filter.Must[0].Key != "tenant_id" || store.last.Filter.Must[0].Value != int64(42) {
		t.Errorf("filter = %+v", store.last.Filter)
	}
}

func TestBot_EscalationContactInfo(t *testing.T) {
	tenants := fakeTenants{
		1: {TenantID: 1, BusinessName: "Olive Oil Co", BusinessHours: "Mon-Fri 9-17", ContactEmail: "help@olive.test", ContactPhone: "+34 600 000 000"},
	}
	b := newTestBot(&fakeStore{}, &fakeModel{}, WithTenants(tenants), WithConfig(config.BotConfig{SiteName: "Kotae Market"}))

	a := b.Chat(context.Background(), models.ChatRequest{Message: "Where is my order?", TenantID: 1})
	for _, want := range []string{"Business hours: Mon-Fri 9-17", "help@olive.test", "+34 600 000 000", "Olive Oil Co"} {
		if !strings.Contains(a.Text, want) {
			t.Errorf("escalation text missing %q:\n%s", want, a.Text)
		}
	}

	a = b.Chat(context.Background(), models.ChatRequest{Message: "Where is my order?", TenantID: 9})
	if strings.Contains(a.Text, "Business hours") || strings.Contains(a.Text, "Email:") || strings.Contains(a.Text, "Phone:") {
		t.Errorf("unconfigured tenant should not get contact lines:\n%s", a.Text)
	}
	if !strings.Contains(a.Text, "Kotae Market") || !a.Escalate {
		t.Errorf("expected site name fallback: %+v", a)
	}
}

type failingProvider struct{ name string }

func (p failingProvider) Name() string { return p.name }
func (p failingProvider) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	return "", errors.New("rate limited")
}

type replyProvider struct{ name, reply string }

func (p replyProvider) Name() string { return p.name }
func (p replyProvider) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	return p.reply, nil
}

func TestBot_FailsOverToSecondProvider(t *testing.T) {
	failover := llm.NewFailover([]llm.Provider{
		failingProvider{name: "primary"},
		replyProvider{name: "backup", reply: "Answer from backup."},
	}, llm.WithLogger(zap.NewNop()), llm.WithAttemptTimeout(time.Second))
	b := newTestBot(&fakeStore{hits: []vector.Hit{faqHit(1, 0.9, "Do you ship abroad?")}}, failover)

	a := b.Chat(context.Background(), models.ChatRequest{Message: "Do you ship abroad?", TenantID: 1})
	if a.Text != "Answer from backup." || a.Tier != models.TierGrounded {
		t.Errorf("answer = %+v", a)
	}
}

func TestBot_AllProvidersFailUsesFallback(t *testing.T) {
	model := &fakeModel{err: llm.ErrAllProvidersFailed}
	b := newTestBot(&fakeStore{hits: []vector.Hit{faqHit(1, 0.9, "Do you ship abroad?")}}, model)

	a := b.Chat(context.Background(), models.ChatRequest{Message: "shipping?", TenantID: 1})
	if a.Text != llm.FallbackText || a.Escalate {
		t.Errorf("answer = %+v", a)
	}
}

func TestBot_UnexpectedErrorsEscalate(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
		model *fakeModel
	}{
		{"store unavailable", &fakeStore{err: vector.ErrUnavailable}, &fakeModel{}},
		{"model error", &fakeStore{hits: []vector.Hit{faqHit(1, 0.9, "q")}}, &fakeModel{err: errors.New("bad request")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBot(tt.store, tt.model)
			a := b.Chat(context.Background(), models.ChatRequest{Message: "hello", TenantID: 1, SessionID: "faqbot_abc"})
			if !a.Escalate || a.Tier != models.TierEscalate || a.SessionID != "faqbot_abc" {
				t.Errorf("answer = %+v", a)
			}
		})
	}
}

type failingEmbedder struct{ *embedding.MockEmbedder }

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, embedding.ErrUnavailable
}

func TestBot_EmbeddingFailureEscalates(t *testing.T) {
	model := &fakeModel{reply: "x"}
	b := NewBot(failingEmbedder{embedding.NewMockEmbedder(16)}, &fakeStore{}, model, WithLogger(zap.NewNop()))

	a := b.Chat(context.Background(), models.ChatRequest{Message: "hello", TenantID: 1})
	if !a.Escalate || len(model.calls) != 0 {
		t.Errorf("answer = %+v, llm calls = %d", a, len(model.calls))
	}
}

func TestBot_EmptyMessage(t *testing.T) {
	store := &fakeStore{}
	b := newTestBot(store, &fakeModel{})

	a := b.Chat(context.Background(), models.ChatRequest{Message: "   \n", TenantID: 1, SessionID: "faqbot_keep"})
	if a.Text != MsgEmptyMessage || a.SessionID != "" || a.Escalate || a.Tier != models.TierError {
		t.Errorf("answer = %+v", a)
	}
	if store.last.Vector != nil {
		t.Error("blank message should not reach the store")
	}
}

func TestBot_SessionHistory(t *testing.T) {
	sessions := session.NewMemoryStore(session.DefaultWindow, session.DefaultTTL)
	model := &fakeModel{reply: "Yes, within 30 days."}
	b := newTestBot(&fakeStore{hits: []vector.Hit{faqHit(1, 0.8, "Can I return items?")}}, model, WithSessions(sessions))
	ctx := context.Background()

	first := b.Chat(ctx, models.ChatRequest{Message: "Can I return items?", TenantID: 1})
	if !strings.HasPrefix(first.SessionID, session.IDPrefix) || len(first.SessionID) != len(session.IDPrefix)+32 {
		t.Fatalf("session id = %q", first.SessionID)
	}
	b.Chat(ctx, models.ChatRequest{Message: "And sale items?", TenantID: 1, SessionID: first.SessionID})

	second := model.calls[1]
	if len(second) != 4 {
		t.Fatalf("expected system, 2 history turns and the question, got %d messages", len(second))
	}
	if second[1].Role != llm.RoleUser || second[1].Content != "Can I return items?" ||
		second[2].Role != llm.RoleAssistant || second[2].Content != "Yes, within 30 days." {
		t.Errorf("history = %+v", second[1:3])
	}

	turns, _ := sessions.History(ctx, first.SessionID)
	if len(turns) != 4 {
		t.Errorf("stored %d turns, want 4", len(turns))
	}
}

type brokenSessions struct{}

func (brokenSessions) History(ctx context.Context, id string) ([]models.Turn, error) {
	return nil, session.ErrStore
}
func (brokenSessions) Append(ctx context.Context, id string, turns ...models.Turn) error {
	return session.ErrStore
}
func (brokenSessions) Close() error { return nil }

func TestBot_SessionFailuresAreSwallowed(t *testing.T) {
	b := newTestBot(&fakeStore{hits: []vector.Hit{faqHit(1, 0.8, "q")}}, &fakeModel{reply: "ok"}, WithSessions(brokenSessions{}))
	a := b.Chat(context.Background(), models.ChatRequest{Message: "hello", TenantID: 1})
	if a.Text != "ok" || a.Escalate {
		t.Errorf("answer = %+v", a)
	}
}

func TestBot_MessageTruncatedAndHistoryClipped(t *testing.T) {
	sessions := session.NewMemoryStore(session.DefaultWindow, session.DefaultTTL)
	model := &fakeModel{reply: strings.Repeat("r", 400)}
	b := newTestBot(&fakeStore{hits: []vector.Hit{faqHit(1, 0.8, "q")}}, model, WithSessions(sessions))
	ctx := context.Background()

	a := b.Chat(ctx, models.ChatRequest{Message: strings.Repeat("é", 600), TenantID: 1})
	msgs := model.calls[0]
	if n := utf8.RuneCountInString(msgs[len(msgs)-1].Content); n != DefaultMaxMessageLength {
		t.Errorf("user message has %d runes", n)
	}

	b.Chat(ctx, models.ChatRequest{Message: "next", TenantID: 1, SessionID: a.SessionID})
	for _, m := range model.calls[1][1:3] {
		if n := utf8.RuneCountInString(m.Content); n > historyTurnLength {
			t.Errorf("history turn has %d runes", n)
		}
	}
}

func TestSuggestions(t *testing.T) {
	long := "How long does delivery take to the Canary Islands and the Balearic Islands?"
	hits := []vector.Hit{
		faqHit(1, 0.9, "Do you ship abroad?"),
		faqHit(2, 0.8, "do you SHIP abroad?"),
		policyHit(3, 0.8, "Returns"),
		faqHit(4, 0.7, "What payment methods do you accept?"),
		faqHit(5, 0.7, "Payment Methods?"),
		faqHit(6, 0.6, long),
		faqHit(7, 0.6, "Can I change my order?"),
	}
	got := suggestions(hits, "Do you ship abroad?")
	if len(got) != 3 {
		t.Fatalf("got %d suggestions: %+v", len(got), got)
	}
	want := []string{"What payment methods do you accept?", "Payment Methods?", long[:57] + "..."}
	for i, s := range got {
		if s.Label != want[i] || s.Action != "ask" {
			t.Errorf("suggestion %d = %+v, want %q", i, s, want[i])
		}
	}
}

func TestSources(t *testing.T) {
	hits := []vector.Hit{faqHit(1, 0.9, "Do you ship abroad?"), policyHit(3, 0.6, "Returns"), faqHit(4, 0.5, "Too weak")}
	got := sources(hits, DefaultEscalateThreshold)
	if len(got) != 2 {
		t.Fatalf("sources = %+v", got)
	}
	if got[0].ID != 1 || got[0].Type != "faq" || got[0].Question != "Do you ship abroad?" {
		t.Errorf("faq source = %+v", got[0])
	}
	if got[1].ID != 3 || got[1].Question != "Returns" {
		t.Errorf("policy source = %+v", got[1])
	}
}

func TestKBContext(t *testing.T) {
	got := kbContext([]vector.Hit{faqHit(1, 0.91234, "Do you ship abroad?"), policyHit(3, 0.6, "Returns")})
	for _, want := range []string{
		"<knowledge_base>\n",
		`<faq id="1" score="0.912">`,
		"<question>Do you ship abroad?</question>",
		`<policy id="3" score="0.6">`,
		"<type>returns</type>",
		"</knowledge_base>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}
}
