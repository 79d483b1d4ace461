package export

import (
	"time"

	"design-coach/internal/domain"
	"design-coach/internal/progress"
)

// Snapshot is the machine-readable form of a session.
type Snapshot struct {
	SessionID    string           `json:"session_id"`
	Status       domain.Status    `json:"status"`
	Messages     []domain.Message `json:"messages"`
	Progress     map[string]bool  `json:"progress"`
	Percentage   int              `json:"percentage"`
	Evidence     map[string]int   `json:"evidence"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
}

// Raw builds a Snapshot of state against the configured stages.
func Raw(state domain.ConversationState, stages []domain.StageDefinition) Snapshot {
	st := state.Clone()
	return Snapshot{
		SessionID:    st.ID,
		Status:       progress.Status(st, stages),
		Messages:     st.Messages,
		Progress:     st.Progress,
		Percentage:   progress.Percentage(st.Progress, stages),
		Evidence:     st.Evidence,
		CreatedAt:    st.CreatedAt,
		LastActivity: st.LastActivity,
	}
}
