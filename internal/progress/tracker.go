// Package progress infers which framework stages a conversation has covered
// from the coach's replies.
package progress

import (
	"math"
	"strings"

	"design-coach/internal/domain"
)

// Matcher reports whether text covers a stage with the given keywords.
type Matcher func(text string, keywords []string) bool

// KeywordMatcher matches when any keyword is a case-insensitive substring of
// text.
func KeywordMatcher(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type Tracker struct {
	match Matcher
}

// NewTracker returns a Tracker using m, or KeywordMatcher when m is nil.
func NewTracker(m Matcher) *Tracker {
	if m == nil {
		m = KeywordMatcher
	}
	return &Tracker{match: m}
}

// Update returns a new progress map with every stage matched by text marked
// covered. Stages already covered stay covered; the input map is not
// modified.
func (t *Tracker) Update(current map[string]bool, stages []domain.StageDefinition, text string) map[string]bool {
	next, _ := t.Apply(current, stages, text)
	return next
}

// Apply is Update that also reports which stage keys became covered by this
// text, in configured order.
func (t *Tracker) Apply(current map[string]bool, stages []domain.StageDefinition, text string) (map[string]bool, []string) {
	next := make(map[string]bool, len(stages))
	for k, v := range current {
		next[k] = v
	}
	var newly []string
	for _, s := range stages {
		if next[s.Key] {
			continue
		}
		if len(s.Keywords) > 0 && t.match(text, s.Keywords) {
			next[s.Key] = true
			newly = append(newly, s.Key)
		}
	}
	return next, newly
}

// Update runs the default keyword tracker.
func Update(current map[string]bool, stages []domain.StageDefinition, text string) map[string]bool {
	return NewTracker(nil).Update(current, stages, text)
}

// Covered counts configured stages marked true in progress.
func Covered(progress map[string]bool, stages []domain.StageDefinition) int {
	n := 0
	for _, s := range stages {
		if progress[s.Key] {
			n++
		}
	}
	return n
}

// Percentage is round(100 * covered / len(stages)), or 0 without stages.
func Percentage(progress map[string]bool, stages []domain.StageDefinition) int {
	if len(stages) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(Covered(progress, stages)) / float64(len(stages))))
}

// IsComplete reports whether every configured stage is covered.
func IsComplete(progress map[string]bool, stages []domain.StageDefinition) bool {
	return len(stages) > 0 && Covered(progress, stages) == len(stages)
}

// Status derives the session lifecycle from its history and progress.
func Status(state domain.ConversationState, stages []domain.StageDefinition) domain.Status {
	switch {
	case IsComplete(state.Progress, stages):
		return domain.StatusComplete
	case len(state.Messages) == 0:
		return domain.StatusEmpty
	default:
		return domain.StatusInProgress
	}
}

// Reconcile returns progress with exactly one entry per stage key: unknown
// keys dropped, missing keys false, existing values kept.
func Reconcile(progress map[string]bool, keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = progress[k]
	}
	return out
}
