package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"design-coach/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ErrMalformedResponse marks a 2xx response the client could not use.
var ErrMalformedResponse = errors.New("openai: malformed response")

// chatRequest is the request shape for the Chat Completions endpoint. Model is
// omitted for Azure, where the deployment is part of the URL.
type chatRequest struct {
	Model            string               `json:"model,omitempty"`
	Messages         []domain.ChatMessage `json:"messages"`
	Temperature      *float64             `json:"temperature,omitempty"`
	MaxTokens        int                  `json:"max_tokens,omitempty"`
	TopP             *float64             `json:"top_p,omitempty"`
	FrequencyPenalty *float64             `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64             `json:"presence_penalty,omitempty"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int                `json:"index"`
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
	Usage *domain.Usage `json:"usage"`
}

// Params are the sampling settings sent with one completion.
type Params struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// KeySource yields the API key for a request.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource for a key known up front.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	if strings.TrimSpace(string(k)) == "" {
		return "", errors.New("openai: API key is empty")
	}
	return string(k), nil
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused chat completions client for OpenAI and Azure OpenAI.
type Client struct {
	baseURL    string
	httpClient *http.Client
	keys       KeySource

	azure      bool
	apiVersion string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAzure targets an Azure OpenAI resource. endpoint is the resource root,
// e.g. https://name.openai.azure.com.
func WithAzure(endpoint, apiVersion string) Option {
	return func(c *Client) {
		c.azure = true
		c.baseURL = strings.TrimSpace(endpoint)
		c.apiVersion = strings.TrimSpace(apiVersion)
	}
}

// NewClient creates a Client that authenticates with keys. The key source is
// consulted on every request; cache in the source if fetching is expensive.
func NewClient(keys KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("openai: key source must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		keys:       keys,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.azure {
		if c.baseURL == "" {
			return nil, errors.New("openai: azure endpoint must not be empty")
		}
		if c.apiVersion == "" {
			return nil, errors.New("openai: azure api version must not be empty")
		}
	}
	return c, nil
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 60s timeout if none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func azureChatURL(endpoint, deployment, apiVersion string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(endpoint, "/"),
		url.PathEscape(deployment),
		url.QueryEscape(apiVersion),
	)
}

// Complete sends messages to the chat completions endpoint. model is the
// model name for OpenAI and the deployment name for Azure.
func (c *Client) Complete(ctx context.Context, model string, messages []domain.ChatMessage, p Params) (domain.Completion, error) {
	if strings.TrimSpace(model) == "" {
		return domain.Completion{}, errors.New("openai: model must not be empty")
	}

	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openai: resolve api key: %w", err)
	}

	body := chatRequest{
		Messages:         messages,
		Temperature:      &p.Temperature,
		MaxTokens:        p.MaxTokens,
		TopP:             &p.TopP,
		FrequencyPenalty: &p.FrequencyPenalty,
		PresencePenalty:  &p.PresencePenalty,
	}
	target := chatURL(c.baseURL)
	if c.azure {
		target = azureChatURL(c.baseURL, model, c.apiVersion)
	} else {
		body.Model = model
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if reqErr != nil {
		return domain.Completion{}, fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.azure {
		req.Header.Set("api-key", apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resBody, err := c.doJSONRequest(req, target)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openai: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(resBody, &payload); decErr != nil {
		return domain.Completion{}, fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, decErr)
	}
	if len(payload.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
	}

	out := domain.Completion{Text: payload.Choices[0].Message.Content}
	if payload.Usage != nil {
		out.Usage = *payload.Usage
	}
	return out, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
