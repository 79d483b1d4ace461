package provider

import (
	"context"
	"strings"

	"design-coach/internal/config"
	"design-coach/internal/domain"
)

const NameMock = "mock"

// Mock answers without network access. The reply is chosen from
// params.Mock: the first rule whose match occurs in the newest user message,
// case-insensitively, else the default reply. Usage is always zero.
type Mock struct{}

func (Mock) Name() string { return NameMock }

func (Mock) Complete(ctx context.Context, payload []domain.ChatMessage, params config.ModelConfig) (domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return domain.Completion{}, err
	}
	text := strings.ToLower(lastUserText(payload))
	for _, rule := range params.Mock.Replies {
		match := strings.ToLower(strings.TrimSpace(rule.Match))
		if match != "" && strings.Contains(text, match) {
			return domain.Completion{Text: rule.Reply}, nil
		}
	}
	return domain.Completion{Text: params.Mock.DefaultReply}, nil
}
