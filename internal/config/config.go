// Package config loads the coach master configuration and keeps the live
// snapshot that every request reads from.
package config

import (
	"time"

	"design-coach/internal/domain"
)

// Config is one immutable snapshot of the master configuration. Readers must
// not modify a Config obtained from a Store; reloads replace it wholesale.
type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Model       ModelConfig       `yaml:"model"`
	Prompts     PromptConfig      `yaml:"prompts"`
	Framework   FrameworkConfig   `yaml:"framework"`
	Server      ServerConfig      `yaml:"server"`
	Sessions    SessionConfig     `yaml:"sessions"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Export      ExportConfig      `yaml:"export"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

type ApplicationConfig struct {
	Name              string `yaml:"name"`
	Version           string `yaml:"version"`
	SaveConversations bool   `yaml:"save_conversations"`
	LogLevel          string `yaml:"log_level"`
	WatchConfig       bool   `yaml:"watch_config"`
}

// ModelConfig holds the completion parameters sent with every turn.
type ModelConfig struct {
	Provider         string     `yaml:"provider"`
	DeploymentName   string     `yaml:"deployment_name"`
	APIVersion       string     `yaml:"api_version"`
	EndpointURL      string     `yaml:"endpoint_url"`
	Temperature      float64    `yaml:"temperature"`
	MaxTokens        int        `yaml:"max_tokens"`
	TopP             float64    `yaml:"top_p"`
	FrequencyPenalty float64    `yaml:"frequency_penalty"`
	PresencePenalty  float64    `yaml:"presence_penalty"`
	MockResponses    bool       `yaml:"mock_responses"`
	Mock             MockConfig `yaml:"mock"`
}

// MockConfig selects the canned replies of the offline backend.
type MockConfig struct {
	DefaultReply string      `yaml:"default_reply"`
	Replies      []MockReply `yaml:"replies"`
}

type MockReply struct {
	Match string `yaml:"match"`
	Reply string `yaml:"reply"`
}

type PromptConfig struct {
	SystemPrompt     string `yaml:"system_prompt"`
	Examples         string `yaml:"examples"`
	ExamplesPreamble string `yaml:"examples_preamble"`
}

type FrameworkConfig struct {
	Stages []domain.StageDefinition `yaml:"stages"`
}

type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int    `yaml:"rate_limit_burst"`
}

// SessionConfig bounds in-memory session growth. Zero values disable the
// corresponding limit.
type SessionConfig struct {
	IdleTTL          time.Duration `yaml:"idle_ttl"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	MaxMessageLength int           `yaml:"max_message_length"`
	MaxMessages      int           `yaml:"max_messages"`
}

type ArchiveConfig struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	DynamoDBTable string `yaml:"dynamodb_table"`
}

type ExportConfig struct {
	Title          string `yaml:"title"`
	PreferEvidence bool   `yaml:"prefer_evidence"`
}

// CredentialsConfig names where live-provider secrets come from. Secrets
// themselves are never stored in a Config.
type CredentialsConfig struct {
	APIKeyParameter string `yaml:"api_key_parameter"`
}

const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	ArchiveNone     = "none"
	ArchiveFile     = "file"
	ArchiveSQLite   = "sqlite"
	ArchiveDynamoDB = "dynamodb"
)

const defaultSystemPrompt = "You are the Design Thinking Coach, an AI assistant specialized in guiding users through the design thinking process."

// Default returns the configuration used for fields a file leaves unset.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "Design Thinking Coach",
			Version:  "1.0.0",
			LogLevel: "INFO",
		},
		Model: ModelConfig{
			Provider:       ProviderAzure,
			DeploymentName: "gpt-4.1-mini",
			APIVersion:     "2025-01-01-preview",
			Temperature:    0.3,
			MaxTokens:      1000,
			TopP:           0.95,
			Mock: MockConfig{
				DefaultReply: "Thanks for your message. As your Design Thinking Coach I am happy to help. What is on your mind today?",
			},
		},
		Prompts: PromptConfig{
			SystemPrompt:     defaultSystemPrompt,
			ExamplesPreamble: "Here are examples of good conversations:",
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			RateLimitPerMinute: 60,
			RateLimitBurst:     10,
		},
		Sessions: SessionConfig{
			SweepInterval:    time.Minute,
			MaxMessageLength: 4000,
		},
		Archive: ArchiveConfig{
			Backend:    ArchiveNone,
			Dir:        "./data/conversations",
			SQLitePath: "./data/conversations.db",
		},
	}
}

// Stages returns the configured stage sequence.
func (c *Config) Stages() []domain.StageDefinition {
	return c.Framework.Stages
}

// ExportTitle is the heading of rendered exports.
func (c *Config) ExportTitle() string {
	if c.Export.Title != "" {
		return c.Export.Title
	}
	return c.Application.Name
}

// PublicConfig is the display-safe projection handed to UI collaborators.
type PublicConfig struct {
	Application PublicApplication        `json:"application"`
	Model       PublicModel              `json:"model"`
	Prompts     PublicPrompts            `json:"prompts"`
	Stages      []domain.StageDefinition `json:"stages"`
}

type PublicApplication struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type PublicModel struct {
	Provider       string  `json:"provider"`
	DeploymentName string  `json:"deployment_name"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TopP           float64 `json:"top_p"`
	MockResponses  bool    `json:"mock_responses"`
}

type PublicPrompts struct {
	SystemPromptLength int `json:"system_prompt_length"`
	ExamplesLength     int `json:"examples_length"`
}

// Public projects c without endpoints, credential references or prompt text.
func (c *Config) Public() PublicConfig {
	stages := make([]domain.StageDefinition, len(c.Framework.Stages))
	for i, s := range c.Framework.Stages {
		s.Keywords = append([]string(nil), s.Keywords...)
		stages[i] = s
	}
	return PublicConfig{
		Application: PublicApplication{Name: c.Application.Name, Version: c.Application.Version},
		Model: PublicModel{
			Provider:       c.Model.Provider,
			DeploymentName: c.Model.DeploymentName,
			Temperature:    c.Model.Temperature,
			MaxTokens:      c.Model.MaxTokens,
			TopP:           c.Model.TopP,
			MockResponses:  c.Model.MockResponses,
		},
		Prompts: PublicPrompts{
			SystemPromptLength: len(c.Prompts.SystemPrompt),
			ExamplesLength:     len(c.Prompts.Examples),
		},
		Stages: stages,
	}
}
