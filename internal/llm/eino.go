package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	arkModel "github.com/cloudwego/eino-ext/components/model/ark"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/hyperjump/kotae/internal/config"
)

// EinoProvider adapts an eino chat model to Provider.
type EinoProvider struct {
	name  string
	model model.BaseChatModel
}

// NewEinoProvider wraps cm under the given name.
func NewEinoProvider(name string, cm model.BaseChatModel) *EinoProvider {
	return &EinoProvider{name: name, model: cm}
}

func (p *EinoProvider) Name() string { return p.name }

// Chat sends the messages and returns the trimmed completion text.
func (p *EinoProvider) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	msgs := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, &schema.Message{Role: schemaRole(m.Role), Content: m.Content})
	}
	var callOpts []model.Option
	if opts.Temperature > 0 {
		callOpts = append(callOpts, model.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	resp, err := p.model.Generate(ctx, msgs, callOpts...)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Content), nil
}

func schemaRole(role string) schema.RoleType {
	switch role {
	case RoleSystem:
		return schema.System
	case RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}

// NewProvider builds a provider from its configuration. timeout bounds the client's
// HTTP calls; Failover applies its own per-attempt deadline on top.
func NewProvider(ctx context.Context, cfg config.ProviderConfig, timeout time.Duration) (Provider, error) {
	apiKey := config.Secret(cfg.APIKey, cfg.APIKeyEnv)
	name := cfg.Name
	if name == "" {
		name = cfg.Type
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider %s: model is required", name)
	}

	switch strings.ToLower(cfg.Type) {
	case "openai", "":
		if apiKey == "" {
			return nil, fmt.Errorf("provider %s: missing api key", name)
		}
		cm, err := openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:  apiKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		return NewEinoProvider(name, cm), nil
	case "ark":
		if apiKey == "" {
			return nil, fmt.Errorf("provider %s: missing api key", name)
		}
		retryTimes := 0
		cm, err := arkModel.NewChatModel(ctx, &arkModel.ChatModelConfig{
			APIKey:     apiKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Region:     cfg.Region,
			Timeout:    &timeout,
			RetryTimes: &retryTimes,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		return NewEinoProvider(name, cm), nil
	default:
		return nil, fmt.Errorf("provider %s: unknown type %s (supported: openai, ark)", name, cfg.Type)
	}
}
