package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error reports a configuration problem. Field is the dotted YAML path when
// the problem is tied to one setting.
type Error struct {
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "config: "
	if e.Field != "" {
		msg += e.Field + ": "
	}
	msg += e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func fieldError(field, format string, args ...any) *Error {
	return &Error{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML file at path, applies environment overrides from the
// process environment and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup LookupFunc) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("read %s", path), Err: err}
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, lookup)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw YAML on top of Default. Unknown keys are rejected so typos
// surface at load time instead of silently falling back to defaults.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Msg: "parse yaml", Err: err}
	}
	normalize(cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Model.Provider = strings.ToLower(strings.TrimSpace(cfg.Model.Provider))
	cfg.Archive.Backend = strings.ToLower(strings.TrimSpace(cfg.Archive.Backend))
	if cfg.Archive.Backend == "" {
		cfg.Archive.Backend = ArchiveNone
	}
	for i := range cfg.Framework.Stages {
		s := &cfg.Framework.Stages[i]
		s.Key = strings.TrimSpace(s.Key)
		kws := make([]string, 0, len(s.Keywords))
		for _, kw := range s.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		s.Keywords = kws
	}
}

// applyEnv layers environment overrides on cfg. Overrides are never written
// back to the file.
func applyEnv(cfg *Config, lookup LookupFunc) {
	if v, ok := lookupNonEmpty(lookup, "ENDPOINT_URL"); ok {
		cfg.Model.EndpointURL = v
	}
	if v, ok := lookupNonEmpty(lookup, "DEPLOYMENT_NAME"); ok {
		cfg.Model.DeploymentName = v
	}
	if v, ok := lookupNonEmpty(lookup, "MODEL_PROVIDER"); ok {
		cfg.Model.Provider = strings.ToLower(v)
	}
	if v, ok := lookupNonEmpty(lookup, "MOCK_RESPONSES"); ok && isTruthy(v) {
		cfg.Model.MockResponses = true
	}
	if v, ok := lookupNonEmpty(lookup, "HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := lookupNonEmpty(lookup, "PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			slog.Warn("ignoring non-numeric PORT override", "value", v)
		}
	}
	if v, ok := lookupNonEmpty(lookup, "LOG_LEVEL"); ok {
		cfg.Application.LogLevel = v
	}

	if !cfg.Model.MockResponses && !HasCredential(cfg, lookup) {
		slog.Warn("no credential configured for model provider, using mock responses", "provider", cfg.Model.Provider)
		cfg.Model.MockResponses = true
	}
}

// APIKeyEnv lists the environment variables consulted for a provider's key,
// in priority order.
func APIKeyEnv(provider string) []string {
	switch provider {
	case ProviderAzure:
		return []string{"AZURE_OPENAI_API_KEY"}
	case ProviderOpenAI:
		return []string{"OPENAI_API_KEY"}
	case ProviderGemini:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
	return nil
}

// HasCredential reports whether a live provider could authenticate.
func HasCredential(cfg *Config, lookup LookupFunc) bool {
	if strings.TrimSpace(cfg.Credentials.APIKeyParameter) != "" {
		return true
	}
	for _, key := range APIKeyEnv(cfg.Model.Provider) {
		if _, ok := lookupNonEmpty(lookup, key); ok {
			return true
		}
	}
	return false
}

func lookupNonEmpty(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// Validate checks required fields and numeric ranges. All problems are
// reported, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(e *Error) { errs = append(errs, e) }

	if len(c.Framework.Stages) == 0 {
		add(fieldError("framework.stages", "at least one stage is required"))
	}
	seen := make(map[string]int, len(c.Framework.Stages))
	for i, s := range c.Framework.Stages {
		field := fmt.Sprintf("framework.stages[%d].key", i)
		if s.Key == "" {
			add(fieldError(field, "must not be empty"))
			continue
		}
		if prev, dup := seen[s.Key]; dup {
			add(fieldError(field, "duplicate stage key %q (also at index %d)", s.Key, prev))
			continue
		}
		seen[s.Key] = i
	}

	switch c.Model.Provider {
	case ProviderAzure, ProviderOpenAI, ProviderGemini:
	default:
		add(fieldError("model.provider", "unknown provider %q", c.Model.Provider))
	}
	if !c.Model.MockResponses && strings.TrimSpace(c.Model.DeploymentName) == "" {
		add(fieldError("model.deployment_name", "required when mock_responses is false"))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		add(fieldError("model.temperature", "must be within [0, 2], got %v", c.Model.Temperature))
	}
	if c.Model.TopP < 0 || c.Model.TopP > 1 {
		add(fieldError("model.top_p", "must be within [0, 1], got %v", c.Model.TopP))
	}
	if c.Model.FrequencyPenalty < -2 || c.Model.FrequencyPenalty > 2 {
		add(fieldError("model.frequency_penalty", "must be within [-2, 2], got %v", c.Model.FrequencyPenalty))
	}
	if c.Model.PresencePenalty < -2 || c.Model.PresencePenalty > 2 {
		add(fieldError("model.presence_penalty", "must be within [-2, 2], got %v", c.Model.PresencePenalty))
	}
	if c.Model.MaxTokens <= 0 {
		add(fieldError("model.max_tokens", "must be > 0, got %d", c.Model.MaxTokens))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add(fieldError("server.port", "must be within [1, 65535], got %d", c.Server.Port))
	}
	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		add(fieldError("server.rate_limit_per_minute", "rate limits must not be negative"))
	}

	if c.Sessions.MaxMessageLength <= 0 {
		add(fieldError("sessions.max_message_length", "must be > 0, got %d", c.Sessions.MaxMessageLength))
	}
	if c.Sessions.MaxMessages < 0 {
		add(fieldError("sessions.max_messages", "must not be negative"))
	}
	if c.Sessions.IdleTTL < 0 {
		add(fieldError("sessions.idle_ttl", "must not be negative"))
	}
	if c.Sessions.IdleTTL > 0 && c.Sessions.SweepInterval <= 0 {
		add(fieldError("sessions.sweep_interval", "must be > 0 when idle_ttl is set"))
	}

	switch c.Archive.Backend {
	case ArchiveNone:
	case ArchiveFile:
		if strings.TrimSpace(c.Archive.Dir) == "" {
			add(fieldError("archive.dir", "required for the file backend"))
		}
	case ArchiveSQLite:
		if strings.TrimSpace(c.Archive.SQLitePath) == "" {
			add(fieldError("archive.sqlite_path", "required for the sqlite backend"))
		}
	case ArchiveDynamoDB:
		if strings.TrimSpace(c.Archive.DynamoDBTable) == "" {
			add(fieldError("archive.dynamodb_table", "required for the dynamodb backend"))
		}
	default:
		add(fieldError("archive.backend", "unknown backend %q", c.Archive.Backend))
	}

	return errors.Join(errs...)
}
