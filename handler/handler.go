// Package handler is the HTTP surface of the coach. The same router serves
// the standalone server and API Gateway events.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"design-coach/internal/config"
	"design-coach/internal/domain"
	"design-coach/internal/export"
	"design-coach/internal/usecase"
)

// Coach is the coaching service behind the routes.
type Coach interface {
	SubmitMessage(ctx context.Context, in usecase.SubmitInput) (usecase.SubmitOutput, error)
	ExportSession(ctx context.Context, id string) (string, error)
	ExportSessionRaw(id string) (export.Snapshot, error)
	Transcript(id string) (string, error)
	ListSessions() []string
	DeleteSession(id string) bool
	ResetSession(id string) bool
	ConfigSnapshot() config.PublicConfig
	ProviderMode() string
	ReloadConfig() error
}

type Handler struct {
	coach   Coach
	limiter *clientLimiter
	metrics http.Handler
	now     func() time.Time
}

type Option func(*Handler)

// WithRateLimit allows perMinute requests per client with the given burst.
// perMinute <= 0 disables limiting.
func WithRateLimit(perMinute, burst int) Option {
	return func(h *Handler) {
		if perMinute > 0 {
			h.limiter = newClientLimiter(perMinute, burst)
		}
	}
}

// WithMetrics mounts m at /metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Reply        string          `json:"reply"`
	Usage        domain.Usage    `json:"usage"`
	SessionID    string          `json:"session_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Progress     map[string]bool `json:"progress"`
	Percentage   int             `json:"percentage"`
	Status       domain.Status   `json:"status"`
	NewlyCovered []string        `json:"newly_covered"`
}

type sessionSummary struct {
	SessionID    string          `json:"session_id"`
	Status       domain.Status   `json:"status"`
	Progress     map[string]bool `json:"progress"`
	Percentage   int             `json:"percentage"`
	MessageCount int             `json:"message_count"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActivity time.Time       `json:"last_activity"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(coach Coach, opts ...Option) (*Handler, error) {
	if coach == nil {
		return nil, errors.New("handler: coach must not be nil")
	}
	h := &Handler{coach: coach, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes builds the router with the standard middleware stack.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.middleware)
			}
			r.Post("/chat", h.chat)

			r.Get("/sessions", h.listSessions)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Delete("/", h.deleteSession)
				r.Post("/reset", h.resetSession)
				r.Get("/export", h.exportSession)
				r.Get("/export/raw", h.exportRaw)
				r.Get("/transcript", h.transcript)
			})

			r.Get("/config", h.getConfig)
			r.Post("/config/reload", h.reloadConfig)
		})
	})
	return r
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
		return
	}

	out, err := h.coach.SubmitMessage(r.Context(), usecase.SubmitInput{SessionID: req.SessionID, Message: req.Message})
	if err != nil {
		writeError(w, r, err)
		return
	}

	newly := out.NewlyCovered
	if newly == nil {
		newly = []string{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Reply:        out.Reply,
		Usage:        out.Usage,
		SessionID:    out.SessionID,
		Timestamp:    h.now(),
		Progress:     out.Progress,
		Percentage:   out.Percentage,
		Status:       out.Status,
		NewlyCovered: newly,
	})
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	ids := h.coach.ListSessions()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coach.ExportSessionRaw(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionSummary{
		SessionID:    snap.SessionID,
		Status:       snap.Status,
		Progress:     snap.Progress,
		Percentage:   snap.Percentage,
		MessageCount: len(snap.Messages),
		CreatedAt:    snap.CreatedAt,
		LastActivity: snap.LastActivity,
	})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.coach.DeleteSession(chi.URLParam(r, "id")) {
		writeError(w, r, &usecase.Error{Code: usecase.ErrorSessionNotFound, Reason: "session_not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resetSession(w http.ResponseWriter, r *http.Request) {
	if !h.coach.ResetSession(chi.URLParam(r, "id")) {
		writeError(w, r, &usecase.Error{Code: usecase.ErrorSessionNotFound, Reason: "session_not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportSession(w http.ResponseWriter, r *http.Request) {
	doc, err := h.coach.ExportSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMarkdown(w, doc)
}

func (h *Handler) exportRaw(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coach.ExportSessionRaw(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) transcript(w http.ResponseWriter, r *http.Request) {
	doc, err := h.coach.Transcript(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMarkdown(w, doc)
}

func (h *Handler) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coach.ConfigSnapshot())
}

func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.coach.ReloadConfig(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"mode":     h.coach.ProviderMode(),
		"sessions": len(h.coach.ListSessions()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeMarkdown(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		ue = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected", Err: err}
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "correlation_id", CorrelationID(r.Context()), "err", err)
	} else {
		slog.Warn("request rejected", "path", r.URL.Path, "correlation_id", CorrelationID(r.Context()), "code", ue.Code, "reason", ue.Reason)
	}
	writeJSON(w, status, errorResponse{Error: string(ue.Code), Reason: ue.Reason})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorSessionNotFound:
		return http.StatusNotFound
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	case usecase.ErrorConfig:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
