// Package bot answers customer questions from a tenant's indexed knowledge.
//
// The best retrieval score picks one of three tiers: a grounded answer, a hedged
// low-confidence answer, or an escalation to human contact without any model call.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// MsgEmptyMessage is the answer text for a blank question.
const MsgEmptyMessage = "message must not be empty"

// Default thresholds and limits.
const (
	DefaultGroundedThreshold = 0.75
	DefaultEscalateThreshold = 0.55
	DefaultTopK              = 5
	DefaultMaxMessageLength  = 500
	DefaultSiteName          = "our company"
)

// ChatModel generates a reply and names the provider that produced it.
// *llm.Failover implements it.
type ChatModel interface {
	Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, string, error)
}

// Bot is the answering engine. It is safe for concurrent use when its dependencies are.
type Bot struct {
	embedder   embedding.Embedder
	store      vector.Store
	model      ChatModel
	collection string
	sessions   session.Store
	tenants    storage.TenantConfigReader
	cfg        config.BotConfig
	llmOpts    llm.Options
	logger     *zap.Logger
}

// BotOption configures a Bot.
type BotOption func(*Bot)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BotOption {
	return func(b *Bot) { b.logger = l }
}

// WithCollection sets the vector collection to search.
func WithCollection(name string) BotOption {
	return func(b *Bot) {
		if name != "" {
			b.collection = name
		}
	}
}

// WithSessions enables conversation history. Without it every request is stateless.
func WithSessions(s session.Store) BotOption {
	return func(b *Bot) { b.sessions = s }
}

// WithTenants sets where business names, hours and contact details come from.
func WithTenants(r storage.TenantConfigReader) BotOption {
	return func(b *Bot) { b.tenants = r }
}

// WithConfig overrides thresholds and limits. Zero fields keep their defaults.
func WithConfig(cfg config.BotConfig) BotOption {
	return func(b *Bot) {
		if cfg.GroundedThreshold > 0 {
			b.cfg.GroundedThreshold = cfg.GroundedThreshold
		}
		if cfg.EscalateThreshold > 0 {
			b.cfg.EscalateThreshold = cfg.EscalateThreshold
		}
		if cfg.TopK > 0 {
			b.cfg.TopK = cfg.TopK
		}
		if cfg.HistoryWindow > 0 {
			b.cfg.HistoryWindow = cfg.HistoryWindow
		}
		if cfg.MaxMessageLength > 0 {
			b.cfg.MaxMessageLength = cfg.MaxMessageLength
		}
		if cfg.SiteName != "" {
			b.cfg.SiteName = cfg.SiteName
		}
	}
}

// WithLLMOptions sets the sampling options for every completion.
func WithLLMOptions(opts llm.Options) BotOption {
	return func(b *Bot) { b.llmOpts = opts }
}

// NewBot returns a Bot searching store with vectors from embedder and replying through model.
func NewBot(embedder embedding.Embedder, store vector.Store, model ChatModel, opts ...BotOption) *Bot {
	b := &Bot{
		embedder:   embedder,
		store:      store,
		model:      model,
		collection: indexer.DefaultCollection,
		cfg: config.BotConfig{
			GroundedThreshold: DefaultGroundedThreshold,
			EscalateThreshold: DefaultEscalateThreshold,
			TopK:              DefaultTopK,
			HistoryWindow:     session.DefaultWindow,
			MaxMessageLength:  DefaultMaxMessageLength,
			SiteName:          DefaultSiteName,
		},
		llmOpts: llm.Options{Temperature: 0.3, MaxTokens: 512},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Chat answers one message. It always returns a usable answer: failures degrade to an
// escalation rather than an error.
func (b *Bot) Chat(ctx context.Context, req models.ChatRequest) *models.Answer {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return &models.Answer{
			Text:        MsgEmptyMessage,
			Sources:     []models.Source{},
			Suggestions: []models.Suggestion{},
			Tier:        models.TierError,
		}
	}
	message = utils.Clip(message, b.cfg.MaxMessageLength)

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = session.NewID()
	}
	log := b.logger.With(zap.Int64("tenant_id", req.TenantID), zap.String("session_id", sessionID))

	history := b.history(ctx, sessionID, log)
	answer, err := b.answer(ctx, req.TenantID, message, history, log)
	if err != nil {
		log.Error("could not answer, escalating", zap.Error(err))
		answer = b.escalation(ctx, req.TenantID, log)
		answer.SessionID = sessionID
		return answer
	}
	answer.SessionID = sessionID
	b.remember(ctx, sessionID, message, answer.Text, log)
	return answer
}

func (b *Bot) answer(ctx context.Context, tenantID int64, message string, history []models.Turn, log *zap.Logger) (*models.Answer, error) {
	vec, err := b.embedder.Embed(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("embed message: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed message: empty vector: %w", embedding.ErrUnavailable)
	}

	hits, err := b.store.Search(ctx, b.collection, vector.SearchRequest{
		Vector: vec,
		Filter: vector.Match("tenant_id", tenantID),
		Limit:  b.cfg.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("search knowledge base: %w", err)
	}

	top := 0.0
	if len(hits) > 0 {
		top = hits[0].Score
	}
	tier := b.tier(top)
	log.Debug("knowledge search", zap.Int("hits", len(hits)), zap.Float64("top_score", top), zap.String("tier", string(tier)))

	if tier == models.TierEscalate {
		a := b.escalation(ctx, tenantID, log)
		a.TopScore = top
		return a, nil
	}

	tenant := b.tenantConfig(ctx, tenantID, log)
	system := systemPrompt(b.businessName(tenant), tenant, kbContext(hits))
	userMessage := message
	if tier == models.TierLowConfidence {
		userMessage += lowConfidenceInstruction
	}

	text, provider, err := b.model.Chat(ctx, chatMessages(system, history, b.cfg.HistoryWindow, userMessage), b.llmOpts)
	if err != nil {
		if !errors.Is(err, llm.ErrAllProvidersFailed) {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
		log.Warn("no llm provider answered", zap.Error(err))
		if text == "" {
			text = llm.FallbackText
		}
	} else {
		log.Debug("answer generated", zap.String("provider", provider))
	}

	a := &models.Answer{
		Text:        text,
		Sources:     sources(hits, b.cfg.EscalateThreshold),
		Suggestions: []models.Suggestion{},
		Tier:        tier,
		TopScore:    top,
	}
	if tier == models.TierGrounded {
		a.Suggestions = suggestions(hits, message)
	}
	return a, nil
}

func (b *Bot) tier(top float64) models.Tier {
	switch {
	case top >= b.cfg.GroundedThreshold:
		return models.TierGrounded
	case top >= b.cfg.EscalateThreshold:
		return models.TierLowConfidence
	default:
		return models.TierEscalate
	}
}

func (b *Bot) escalation(ctx context.Context, tenantID int64, log *zap.Logger) *models.Answer {
	tenant := b.tenantConfig(ctx, tenantID, log)
	return &models.Answer{
		Text:        escalationText(b.businessName(tenant), tenant),
		Sources:     []models.Source{},
		Suggestions: []models.Suggestion{},
		Escalate:    true,
		Tier:        models.TierEscalate,
	}
}

func (b *Bot) businessName(tenant *models.TenantConfig) string {
	if tenant != nil && strings.TrimSpace(tenant.BusinessName) != "" {
		return tenant.BusinessName
	}
	return b.cfg.SiteName
}

// tenantConfig returns nil when the tenant has no configuration or it cannot be read.
func (b *Bot) tenantConfig(ctx context.Context, tenantID int64, log *zap.Logger) *models.TenantConfig {
	if b.tenants == nil {
		return nil
	}
	cfg, err := b.tenants.GetTenantConfig(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn("could not load tenant config", zap.Error(err))
		}
		return nil
	}
	return cfg
}

func (b *Bot) history(ctx context.Context, sessionID string, log *zap.Logger) []models.Turn {
	if b.sessions == nil {
		return nil
	}
	turns, err := b.sessions.History(ctx, sessionID)
	if err != nil {
		log.Warn("session history unavailable", zap.Error(err))
		return nil
	}
	return turns
}

func (b *Bot) remember(ctx context.Context, sessionID, message, reply string, log *zap.Logger) {
	if b.sessions == nil {
		return
	}
	err := b.sessions.Append(ctx, sessionID,
		models.Turn{Role: models.RoleUser, Content: message},
		models.Turn{Role: models.RoleAssistant, Content: reply})
	if err != nil {
		log.Warn("could not save session history", zap.Error(err))
	}
}
