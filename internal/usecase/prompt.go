package usecase

import (
	"strings"

	"design-coach/internal/config"
	"design-coach/internal/domain"
)

// AssemblePrompt builds the provider payload for one turn: the system prompt,
// the few-shot block as a second system message, the prior user and
// assistant messages in order, then the new user message. Empty prompt
// sections are left out. Nothing is truncated.
func AssemblePrompt(cfg *config.Config, history []domain.Message, userText string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+3)

	if s := strings.TrimSpace(cfg.Prompts.SystemPrompt); s != "" {
		messages = append(messages, domain.ChatMessage{Role: string(domain.RoleSystem), Content: s})
	}
	if ex := strings.TrimSpace(cfg.Prompts.Examples); ex != "" {
		messages = append(messages, domain.ChatMessage{Role: string(domain.RoleSystem), Content: examplesBlock(cfg.Prompts.ExamplesPreamble, ex)})
	}

	for _, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		messages = append(messages, domain.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	return append(messages, domain.ChatMessage{Role: string(domain.RoleUser), Content: userText})
}

func examplesBlock(preamble, examples string) string {
	preamble = strings.TrimSpace(preamble)
	if preamble == "" {
		return examples
	}
	return preamble + "\n\n" + examples
}
