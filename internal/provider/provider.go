// Package provider selects and calls the model backend for a turn.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"design-coach/internal/config"
	"design-coach/internal/domain"
	"design-coach/internal/integrations/gemini"
	"design-coach/internal/integrations/openai"
	"design-coach/internal/integrations/paramstore"
)

// Provider produces one completion for an assembled prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, payload []domain.ChatMessage, params config.ModelConfig) (domain.Completion, error)
}

type ErrorKind string

const (
	KindTransport   ErrorKind = "transport"
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindUpstream    ErrorKind = "upstream"
	KindMalformed   ErrorKind = "malformed"
)

// Error is a failed provider call, classified so callers can map it to a
// response without inspecting backend-specific types.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// classify wraps err in an *Error. Errors that are already classified pass
// through unchanged.
func classify(name string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	out := &Error{Provider: name, Kind: KindTransport, Err: err}

	var sc httpStatusCoder
	if errors.As(err, &sc) {
		out.StatusCode = sc.HTTPStatusCode()
		switch out.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			out.Kind = KindAuth
		case http.StatusTooManyRequests:
			out.Kind = KindRateLimited
		default:
			out.Kind = KindUpstream
		}
		return out
	}

	var netErr net.Error
	switch {
	case errors.Is(err, openai.ErrMalformedResponse), errors.Is(err, gemini.ErrMalformedResponse):
		out.Kind = KindMalformed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		out.Kind = KindTransport
	case errors.Is(err, ErrMissingCredential), errors.Is(err, paramstore.ErrParameterNotFound):
		out.Kind = KindAuth
	}
	return out
}

// lastUserText returns the content of the final user message in payload.
func lastUserText(payload []domain.ChatMessage) string {
	for i := len(payload) - 1; i >= 0; i-- {
		if payload[i].Role == string(domain.RoleUser) {
			return payload[i].Content
		}
	}
	return ""
}
