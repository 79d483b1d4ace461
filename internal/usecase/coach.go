package usecase

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"design-coach/internal/config"
	"design-coach/internal/domain"
	"design-coach/internal/export"
	"design-coach/internal/metrics"
	"design-coach/internal/progress"
	"design-coach/internal/provider"
	"design-coach/internal/session"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

type ConfigSource interface {
	Current() *config.Config
	Reload() (*config.Config, error)
}

type ModelProvider interface {
	Complete(ctx context.Context, cfg *config.Config, payload []domain.ChatMessage) (domain.Completion, error)
}

type SessionStore interface {
	GetOrCreate(id string) (domain.ConversationState, bool)
	Get(id string) (domain.ConversationState, bool)
	Update(id string, fn func(*domain.ConversationState) error) (domain.ConversationState, error)
	Delete(id string) bool
	List() []string
	Len() int
	ResetProgress(id string) bool
	AcquireTurn(ctx context.Context, id string) (func(), error)
}

// TurnArchiver receives every completed turn. Failures never fail the turn.
type TurnArchiver interface {
	SaveTurn(ctx context.Context, turn domain.Turn) error
}

type CoachService struct {
	config   ConfigSource
	sessions SessionStore
	llm      ModelProvider
	archive  TurnArchiver
	tracker  *progress.Tracker
	now      func() time.Time
}

type Option func(*CoachService)

// WithArchiver records completed turns when application.save_conversations
// is enabled.
func WithArchiver(a TurnArchiver) Option {
	return func(s *CoachService) { s.archive = a }
}

func WithMatcher(m progress.Matcher) Option {
	return func(s *CoachService) { s.tracker = progress.NewTracker(m) }
}

func WithClock(now func() time.Time) Option {
	return func(s *CoachService) { s.now = now }
}

type SubmitInput struct {
	SessionID string
	Message   string
}

type SubmitOutput struct {
	SessionID    string
	Reply        string
	Usage        domain.Usage
	Progress     map[string]bool
	Percentage   int
	Status       domain.Status
	NewlyCovered []string
}

func NewCoachService(cfg ConfigSource, sessions SessionStore, llm ModelProvider, opts ...Option) (*CoachService, error) {
	if cfg == nil {
		return nil, errors.New("usecase: config source must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: model provider must not be nil")
	}
	s := &CoachService{
		config:   cfg,
		sessions: sessions,
		llm:      llm,
		tracker:  progress.NewTracker(nil),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitMessage runs one turn. The user message is recorded before the
// provider call; the reply, progress and evidence are committed together only
// after the call succeeds. Overlapping calls on one session run one at a time.
func (s *CoachService) SubmitMessage(ctx context.Context, in SubmitInput) (SubmitOutput, error) {
	cfg := s.config.Current()

	text := strings.TrimSpace(in.Message)
	if text == "" {
		metrics.RecordTurn("invalid")
		return SubmitOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(text) > cfg.Sessions.MaxMessageLength {
		metrics.RecordTurn("invalid")
		return SubmitOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		id = newUUID()
	} else if !sessionIDPattern.MatchString(id) {
		metrics.RecordTurn("invalid")
		return SubmitOutput{}, newError(ErrorInvalidInput, "invalid_session_id", nil)
	}

	if _, created := s.sessions.GetOrCreate(id); created {
		slog.Info("session created", "session_id", id)
		metrics.SetSessionsActive(s.sessions.Len())
	}

	release, err := s.sessions.AcquireTurn(ctx, id)
	if err != nil {
		metrics.RecordTurn("error")
		if errors.Is(err, session.ErrNotFound) {
			return SubmitOutput{}, newError(ErrorSessionNotFound, "session_deleted", err)
		}
		return SubmitOutput{}, newError(ErrorInternal, "turn_wait_canceled", err)
	}
	defer release()

	userMsg := domain.NewMessage(domain.RoleUser, text)
	var prior []domain.Message
	_, err = s.sessions.Update(id, func(st *domain.ConversationState) error {
		if limit := cfg.Sessions.MaxMessages; limit > 0 && len(st.Messages)+2 > limit {
			return newError(ErrorInvalidInput, "session_full", nil)
		}
		prior = append([]domain.Message(nil), st.Messages...)
		st.Messages = append(st.Messages, userMsg)
		return nil
	})
	if err != nil {
		metrics.RecordTurn("invalid")
		var ue *Error
		if errors.As(err, &ue) {
			return SubmitOutput{}, ue
		}
		return SubmitOutput{}, newError(ErrorSessionNotFound, "session_deleted", err)
	}

	completion, err := s.llm.Complete(ctx, cfg, AssemblePrompt(cfg, prior, text))
	if err != nil {
		metrics.RecordTurn("provider_error")
		slog.Warn("model provider failed", "session_id", id, "err", err)
		var pe *provider.Error
		if errors.As(err, &pe) && pe.Kind == provider.KindRateLimited {
			return SubmitOutput{}, newError(ErrorRateLimited, "provider_rate_limited", err)
		}
		return SubmitOutput{}, newError(ErrorUpstream, "provider_error", err)
	}

	stages := cfg.Stages()
	assistantMsg := domain.NewMessage(domain.RoleAssistant, completion.Text)
	var newly []string
	state, err := s.sessions.Update(id, func(st *domain.ConversationState) error {
		st.Messages = append(st.Messages, assistantMsg)
		st.Progress, newly = s.tracker.Apply(st.Progress, stages, completion.Text)
		for _, key := range newly {
			st.Evidence[key] = len(st.Messages) - 1
		}
		return nil
	})
	if err != nil {
		metrics.RecordTurn("error")
		return SubmitOutput{}, newError(ErrorSessionNotFound, "session_deleted", err)
	}

	// A reload during the provider call may have changed the stage list the
	// store reconciled against. Report the turn against this turn's stages only.
	state.Progress = progress.Reconcile(state.Progress, domain.StageKeys(stages))
	newly = committedKeys(newly, state.Progress)

	for _, key := range newly {
		metrics.RecordStageCovered(key)
	}
	metrics.RecordTurn("success")

	pct := progress.Percentage(state.Progress, stages)
	s.archiveTurn(ctx, cfg, state, userMsg, assistantMsg, pct)

	return SubmitOutput{
		SessionID:    id,
		Reply:        completion.Text,
		Usage:        completion.Usage,
		Progress:     state.Progress,
		Percentage:   pct,
		Status:       progress.Status(state, stages),
		NewlyCovered: newly,
	}, nil
}

// committedKeys keeps the keys of newly that are covered in progress.
func committedKeys(newly []string, covered map[string]bool) []string {
	var out []string
	for _, key := range newly {
		if covered[key] {
			out = append(out, key)
		}
	}
	return out
}

func (s *CoachService) archiveTurn(ctx context.Context, cfg *config.Config, state domain.ConversationState, user, assistant domain.Message, pct int) {
	if s.archive == nil || !cfg.Application.SaveConversations {
		return
	}
	turn := domain.Turn{
		SessionID:  state.ID,
		Number:     state.CountRole(domain.RoleAssistant),
		User:       user,
		Assistant:  assistant,
		Progress:   state.Progress,
		Percentage: pct,
		History:    state.Messages,
		CreatedAt:  state.CreatedAt,
		RecordedAt: s.now(),
	}
	if err := s.archive.SaveTurn(ctx, turn); err != nil {
		slog.Error("failed to archive conversation turn", "session_id", state.ID, "turn", turn.Number, "err", err)
	}
}

// ExportSession renders the structured Markdown summary of a session.
func (s *CoachService) ExportSession(_ context.Context, id string) (string, error) {
	state, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	cfg := s.config.Current()
	return export.Render(export.Document{
		Title:          cfg.ExportTitle(),
		GeneratedAt:    s.now(),
		History:        state.Messages,
		Stages:         cfg.Stages(),
		Progress:       state.Progress,
		Evidence:       state.Evidence,
		PreferEvidence: cfg.Export.PreferEvidence,
	}), nil
}

func (s *CoachService) ExportSessionRaw(id string) (export.Snapshot, error) {
	state, err := s.lookup(id)
	if err != nil {
		return export.Snapshot{}, err
	}
	return export.Raw(state, s.config.Current().Stages()), nil
}

// Transcript renders every message of a session in order.
func (s *CoachService) Transcript(id string) (string, error) {
	state, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return export.Transcript(s.config.Current().ExportTitle(), state.Messages, s.now()), nil
}

func (s *CoachService) ListSessions() []string {
	return s.sessions.List()
}

// DeleteSession reports whether the session existed.
func (s *CoachService) DeleteSession(id string) bool {
	existed := s.sessions.Delete(strings.TrimSpace(id))
	if existed {
		slog.Info("session deleted", "session_id", id)
		metrics.SetSessionsActive(s.sessions.Len())
	}
	return existed
}

// ResetSession clears stage coverage but keeps the history.
func (s *CoachService) ResetSession(id string) bool {
	return s.sessions.ResetProgress(strings.TrimSpace(id))
}

func (s *CoachService) ConfigSnapshot() config.PublicConfig {
	return s.config.Current().Public()
}

// ProviderMode reports "mock" or "live" for the current config.
func (s *CoachService) ProviderMode() string {
	return provider.Mode(s.config.Current())
}

// ReloadConfig re-reads the configuration file. On failure the previous
// configuration stays active.
func (s *CoachService) ReloadConfig() error {
	if _, err := s.config.Reload(); err != nil {
		metrics.RecordConfigReload("error")
		return newError(ErrorConfig, "config_reload_failed", err)
	}
	metrics.RecordConfigReload("success")
	return nil
}

// SessionsEvicted keeps the active-session gauge in step with the sweeper.
func (s *CoachService) SessionsEvicted(ids []string) {
	for _, id := range ids {
		slog.Info("session evicted", "session_id", id)
	}
	metrics.SetSessionsActive(s.sessions.Len())
}

func (s *CoachService) lookup(id string) (domain.ConversationState, error) {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return domain.ConversationState{}, newError(ErrorInvalidInput, "invalid_session_id", nil)
	}
	state, ok := s.sessions.Get(id)
	if !ok {
		return domain.ConversationState{}, newError(ErrorSessionNotFound, "session_not_found", nil)
	}
	return state, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
