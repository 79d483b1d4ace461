package export

import (
	"fmt"
	"strings"
	"time"

	"design-coach/internal/domain"
)

// Transcript renders the full history as Markdown, one section per message.
func Transcript(title string, history []domain.Message, exportedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Conversation\n", title)
	fmt.Fprintf(&b, "Exported: %s\n\n", exportedAt.UTC().Format(timestampLayout))

	for _, m := range history {
		ts := m.Timestamp.UTC().Format(time.RFC3339)
		switch {
		case !m.Role.Valid():
			fmt.Fprintf(&b, "## ❔ %s (%s)\n", m.Role, ts)
		case m.IsStructuredSummary:
			fmt.Fprintf(&b, "## 📋 Summary (%s)\n", ts)
		case m.Role == domain.RoleUser:
			fmt.Fprintf(&b, "## 👤 User (%s)\n", ts)
		case m.Role == domain.RoleAssistant:
			fmt.Fprintf(&b, "## 🤖 Coach (%s)\n", ts)
		default:
			fmt.Fprintf(&b, "## 🔧 System (%s)\n", ts)
		}
		fmt.Fprintf(&b, "\n%s\n\n---\n\n", m.Content)
	}
	return b.String()
}
