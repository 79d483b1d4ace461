package provider

import (
	"errors"
	"strings"
	"sync"

	"design-coach/internal/config"
	"design-coach/internal/integrations/openai"
	"design-coach/internal/integrations/paramstore"
)

var ErrMissingCredential = errors.New("provider: no credential configured")

// Keys resolves the API key source for the configured provider: an
// environment variable first, then the SSM parameter named in
// credentials.api_key_parameter.
type Keys struct {
	lookup config.LookupFunc
	params paramstore.Getter

	mu      sync.Mutex
	sources map[string]*paramstore.TokenSource
}

// NewKeys returns a resolver. params may be nil when SSM is not in use.
func NewKeys(lookup config.LookupFunc, params paramstore.Getter) (*Keys, error) {
	if lookup == nil {
		return nil, errors.New("provider: env lookup must not be nil")
	}
	return &Keys{lookup: lookup, params: params, sources: make(map[string]*paramstore.TokenSource)}, nil
}

func (k *Keys) Source(cfg *config.Config) (openai.KeySource, error) {
	for _, env := range config.APIKeyEnv(cfg.Model.Provider) {
		if v, ok := k.lookup(env); ok && strings.TrimSpace(v) != "" {
			return openai.StaticKey(strings.TrimSpace(v)), nil
		}
	}
	name := strings.TrimSpace(cfg.Credentials.APIKeyParameter)
	if name == "" || k.params == nil {
		return nil, ErrMissingCredential
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if src, ok := k.sources[name]; ok {
		return src, nil
	}
	src, err := paramstore.NewTokenSource(k.params, name)
	if err != nil {
		return nil, err
	}
	k.sources[name] = src
	return src, nil
}
