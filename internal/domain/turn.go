package domain

import "time"

// Turn is one completed request/reply exchange, as written to the transcript
// archive.
type Turn struct {
	SessionID  string          `json:"session_id"`
	Number     int             `json:"turn"`
	User       Message         `json:"user"`
	Assistant  Message         `json:"assistant"`
	Progress   map[string]bool `json:"progress"`
	Percentage int             `json:"percentage"`
	History    []Message       `json:"messages"`
	CreatedAt  time.Time       `json:"created_at"`
	RecordedAt time.Time       `json:"last_updated"`
}
