package domain

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single conversation entry. Messages are never modified once
// appended to a session.
type Message struct {
	Role                Role      `json:"role"`
	Content             string    `json:"content"`
	Timestamp           time.Time `json:"timestamp"`
	// IsStructuredSummary marks a recap rather than a chat turn. SubmitMessage
	// never sets it; transcripts label such messages separately.
	IsStructuredSummary bool      `json:"is_structured_summary,omitempty"`
}

// NewMessage stamps a message with the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Status is the coarse lifecycle of a session.
type Status string

const (
	StatusEmpty      Status = "EMPTY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusComplete   Status = "COMPLETE"
)

// ConversationState is one session's history and stage coverage.
type ConversationState struct {
	ID           string
	Messages     []Message
	Progress     map[string]bool
	Evidence     map[string]int // stage key -> index in Messages that covered it
	CreatedAt    time.Time
	LastActivity time.Time
}

// Clone returns a deep copy that shares nothing with s.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	out.Progress = make(map[string]bool, len(s.Progress))
	for k, v := range s.Progress {
		out.Progress[k] = v
	}
	out.Evidence = make(map[string]int, len(s.Evidence))
	for k, v := range s.Evidence {
		out.Evidence[k] = v
	}
	return out
}

// CountRole returns how many messages were authored by role.
func (s ConversationState) CountRole(role Role) int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}
