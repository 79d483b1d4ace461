package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"design-coach/internal/config"
	"design-coach/internal/domain"
	"design-coach/internal/integrations/gemini"
	"design-coach/internal/integrations/openai"
	"design-coach/internal/metrics"
)

const (
	ModeMock = "mock"
	ModeLive = "live"
)

// Factory builds the live provider for cfg.
type Factory func(ctx context.Context, cfg *config.Config) (Provider, error)

// Router picks the backend for each call from the config snapshot it is
// given: Mock when mock_responses is set, else the live provider named by
// model.provider. Live providers are built once per distinct connection
// setting and reused.
type Router struct {
	mock    Provider
	factory Factory

	mu     sync.Mutex
	live   map[string]Provider
	builds singleflight.Group
}

func NewRouter(factory Factory) (*Router, error) {
	if factory == nil {
		return nil, errors.New("provider: factory must not be nil")
	}
	return &Router{mock: Mock{}, factory: factory, live: make(map[string]Provider)}, nil
}

// Mode reports whether cfg routes to the mock or a live backend.
func Mode(cfg *config.Config) string {
	if cfg.Model.MockResponses {
		return ModeMock
	}
	return ModeLive
}

func (r *Router) Select(ctx context.Context, cfg *config.Config) (Provider, error) {
	if cfg.Model.MockResponses {
		return r.mock, nil
	}
	key := liveKey(cfg)

	r.mu.Lock()
	p, ok := r.live[key]
	r.mu.Unlock()
	if ok {
		return p, nil
	}

	// Builds can fetch credentials; run them outside r.mu and once per key.
	v, err, _ := r.builds.Do(key, func() (any, error) {
		r.mu.Lock()
		p, ok := r.live[key]
		r.mu.Unlock()
		if ok {
			return p, nil
		}
		p, err := r.factory(ctx, cfg)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.live[key] = p
		r.mu.Unlock()
		slog.Info("model provider initialized", "provider", p.Name(), "deployment", cfg.Model.DeploymentName)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Complete runs one completion against the backend selected for cfg. Every
// failure is returned as *Error. There are no retries.
func (r *Router) Complete(ctx context.Context, cfg *config.Config, payload []domain.ChatMessage) (domain.Completion, error) {
	p, err := r.Select(ctx, cfg)
	if err != nil {
		return domain.Completion{}, classify(cfg.Model.Provider, err)
	}

	start := time.Now()
	out, err := p.Complete(ctx, payload, cfg.Model)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		pe := classify(p.Name(), err)
		metrics.RecordProviderRequest(p.Name(), string(pe.Kind), elapsed)
		return domain.Completion{}, pe
	}
	metrics.RecordProviderRequest(p.Name(), "success", elapsed)
	metrics.RecordProviderTokens(p.Name(), out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

func liveKey(cfg *config.Config) string {
	m := cfg.Model
	return fmt.Sprintf("%s|%s|%s|%s", m.Provider, m.EndpointURL, m.APIVersion, cfg.Credentials.APIKeyParameter)
}

// NewFactory returns the Factory used in production. httpClient may be nil.
func NewFactory(keys *Keys, httpClient *http.Client) Factory {
	return func(ctx context.Context, cfg *config.Config) (Provider, error) {
		src, err := keys.Source(cfg)
		if err != nil {
			return nil, err
		}
		m := cfg.Model
		switch m.Provider {
		case config.ProviderAzure:
			c, err := openai.NewClient(src, openai.WithAzure(m.EndpointURL, m.APIVersion), openai.WithHTTPClient(httpClient))
			if err != nil {
				return nil, err
			}
			return NewOpenAI(config.ProviderAzure, c), nil
		case config.ProviderOpenAI:
			opts := []openai.Option{openai.WithHTTPClient(httpClient)}
			if m.EndpointURL != "" {
				opts = append(opts, openai.WithBaseURL(m.EndpointURL))
			}
			c, err := openai.NewClient(src, opts...)
			if err != nil {
				return nil, err
			}
			return NewOpenAI(config.ProviderOpenAI, c), nil
		case config.ProviderGemini:
			key, err := src.APIKey(ctx)
			if err != nil {
				return nil, err
			}
			c, err := gemini.NewClient(ctx, key)
			if err != nil {
				return nil, err
			}
			return NewGemini(c), nil
		}
		return nil, fmt.Errorf("provider: unknown provider %q", m.Provider)
	}
}
