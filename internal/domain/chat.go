package domain

// ChatMessage is the provider-agnostic chat message shape used by the prompt
// assembler and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the text and usage returned by a model provider.
type Completion struct {
	Text  string
	Usage Usage
}
