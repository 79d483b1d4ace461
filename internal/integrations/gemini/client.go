// Package gemini adapts the Google Gen AI SDK to the coach's chat completion
// shape.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"design-coach/internal/domain"
)

// ErrMalformedResponse marks a response without usable candidate text.
var ErrMalformedResponse = errors.New("gemini: malformed response")

// generator is the slice of *genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// StatusError is an upstream API error with its HTTP status.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d (%s): %s", e.StatusCode, e.Status, e.Message)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Params are the sampling settings sent with one completion.
type Params struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

type Client struct {
	models generator
}

// NewClient builds a Client for the Gemini API using apiKey.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{models: c.Models}, nil
}

func newWithGenerator(g generator) (*Client, error) {
	if g == nil {
		return nil, errors.New("gemini: generator must not be nil")
	}
	return &Client{models: g}, nil
}

// Complete sends messages to model. System messages become the system
// instruction; assistant turns are sent with the model role.
func (c *Client) Complete(ctx context.Context, model string, messages []domain.ChatMessage, p Params) (domain.Completion, error) {
	if strings.TrimSpace(model) == "" {
		return domain.Completion{}, errors.New("gemini: model must not be empty")
	}
	system, contents := toContents(messages)
	if len(contents) == 0 {
		return domain.Completion{}, errors.New("gemini: at least one user or assistant message is required")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(p.Temperature)),
		TopP:             genai.Ptr(float32(p.TopP)),
		MaxOutputTokens:  int32(p.MaxTokens),
		FrequencyPenalty: genai.Ptr(float32(p.FrequencyPenalty)),
		PresencePenalty:  genai.Ptr(float32(p.PresencePenalty)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return domain.Completion{}, &StatusError{StatusCode: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
		}
		return domain.Completion{}, fmt.Errorf("gemini: generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return domain.Completion{}, fmt.Errorf("%w: no candidate text", ErrMalformedResponse)
	}
	out := domain.Completion{Text: text}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func toContents(messages []domain.ChatMessage) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch domain.Role(m.Role) {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
