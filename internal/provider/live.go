package provider

import (
	"context"

	"design-coach/internal/config"
	"design-coach/internal/domain"
	"design-coach/internal/integrations/gemini"
	"design-coach/internal/integrations/openai"
)

type chatCompleter interface {
	Complete(ctx context.Context, model string, messages []domain.ChatMessage, p openai.Params) (domain.Completion, error)
}

// OpenAI serves both the azure and openai providers; the client decides URL
// shape and auth header.
type OpenAI struct {
	name   string
	client chatCompleter
}

func NewOpenAI(name string, client chatCompleter) *OpenAI {
	return &OpenAI{name: name, client: client}
}

func (p *OpenAI) Name() string { return p.name }

func (p *OpenAI) Complete(ctx context.Context, payload []domain.ChatMessage, params config.ModelConfig) (domain.Completion, error) {
	return p.client.Complete(ctx, params.DeploymentName, payload, openai.Params{
		Temperature:      params.Temperature,
		MaxTokens:        params.MaxTokens,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
	})
}

type geminiCompleter interface {
	Complete(ctx context.Context, model string, messages []domain.ChatMessage, p gemini.Params) (domain.Completion, error)
}

type Gemini struct {
	client geminiCompleter
}

func NewGemini(client geminiCompleter) *Gemini {
	return &Gemini{client: client}
}

func (p *Gemini) Name() string { return config.ProviderGemini }

func (p *Gemini) Complete(ctx context.Context, payload []domain.ChatMessage, params config.ModelConfig) (domain.Completion, error) {
	return p.client.Complete(ctx, params.DeploymentName, payload, gemini.Params{
		Temperature:      params.Temperature,
		MaxTokens:        params.MaxTokens,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
	})
}
