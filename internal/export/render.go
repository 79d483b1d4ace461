// Package export renders session state into documents for download.
package export

import (
	"fmt"
	"strings"
	"time"

	"design-coach/internal/domain"
	"design-coach/internal/progress"
)

const timestampLayout = "2006-01-02 15:04:05"

// Document is everything Render needs. GeneratedAt is supplied by the caller
// so output is reproducible.
type Document struct {
	Title          string
	GeneratedAt    time.Time
	History        []domain.Message
	Stages         []domain.StageDefinition
	Progress       map[string]bool
	Evidence       map[string]int
	PreferEvidence bool
}

// Render builds the structured Markdown summary: a header with the progress
// marker, one section per covered stage in configured order, and a trailer
// counting user messages. It never fails; uncovered stages are skipped.
func Render(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	fmt.Fprintf(&b, "Generated: %s\n", doc.GeneratedAt.UTC().Format(timestampLayout))
	fmt.Fprintf(&b, "Progress: %d%%\n", progress.Percentage(doc.Progress, doc.Stages))

	for _, stage := range doc.Stages {
		if !doc.Progress[stage.Key] {
			continue
		}
		b.WriteString("\n")
		b.WriteString(heading(stage))
		b.WriteString("\n")
		if d := strings.TrimSpace(stage.Description); d != "" {
			fmt.Fprintf(&b, "\n%s\n", d)
		}
		if body := stageContent(doc, stage.Key); body != "" {
			fmt.Fprintf(&b, "\n%s\n", body)
		}
	}

	users := 0
	for _, m := range doc.History {
		if m.Role == domain.RoleUser {
			users++
		}
	}
	fmt.Fprintf(&b, "\n---\n\nTotal user messages: %d\n", users)
	return b.String()
}

func heading(stage domain.StageDefinition) string {
	title := stage.Title
	if title == "" {
		title = stage.Key
	}
	if stage.Icon == "" {
		return "## " + title
	}
	return "## " + stage.Icon + " " + title
}

func stageContent(doc Document, key string) string {
	if doc.PreferEvidence {
		if i, ok := doc.Evidence[key]; ok && i >= 0 && i < len(doc.History) && doc.History[i].Role == domain.RoleAssistant {
			return doc.History[i].Content
		}
	}
	return FirstMention(doc.History, key)
}

// FirstMention returns the first assistant message whose content contains
// key, case-insensitively, or "" when none does.
func FirstMention(history []domain.Message, key string) string {
	needle := strings.ToLower(key)
	for _, m := range history {
		if m.Role != domain.RoleAssistant {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), needle) {
			return m.Content
		}
	}
	return ""
}
