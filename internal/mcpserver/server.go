// Package mcpserver exposes the coach as Model Context Protocol tools over
// stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"design-coach/internal/usecase"
)

// Coach is the part of the coaching service the tools call.
type Coach interface {
	SubmitMessage(ctx context.Context, in usecase.SubmitInput) (usecase.SubmitOutput, error)
	ExportSession(ctx context.Context, id string) (string, error)
	ListSessions() []string
	DeleteSession(id string) bool
	ResetSession(id string) bool
}

type Tools struct {
	coach Coach
}

type submitResult struct {
	SessionID    string          `json:"session_id"`
	Reply        string          `json:"reply"`
	Progress     map[string]bool `json:"progress"`
	Percentage   int             `json:"percentage"`
	Status       string          `json:"status"`
	NewlyCovered []string        `json:"newly_covered,omitempty"`
}

// New registers the coach tools on a fresh MCP server.
func New(coach Coach, name, version string) (*server.MCPServer, error) {
	if coach == nil {
		return nil, errors.New("mcpserver: coach must not be nil")
	}
	t := &Tools{coach: coach}
	s := server.NewMCPServer(name, version)

	s.AddTool(mcp.NewTool("submit_message",
		mcp.WithDescription("Sends one message to the design thinking coach and returns the reply with stage progress."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's message")),
		mcp.WithString("session_id", mcp.Description("Session to continue; a new one is created when omitted")),
	), t.submitHandler)

	s.AddTool(mcp.NewTool("export_session",
		mcp.WithDescription("Renders the structured Markdown summary of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to export")),
	), t.exportHandler)

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("Lists the ids of all live sessions."),
	), t.listHandler)

	s.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Deletes a session and its history."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to delete")),
	), t.deleteHandler)

	s.AddTool(mcp.NewTool("reset_session",
		mcp.WithDescription("Clears stage progress of a session but keeps its history."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to reset")),
	), t.resetHandler)

	return s, nil
}

// Serve blocks serving s on stdin/stdout.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func stringArg(request mcp.CallToolRequest, key string) string {
	args, _ := request.Params.Arguments.(map[string]any)
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func (t *Tools) submitHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := stringArg(request, "message")
	if message == "" {
		return mcp.NewToolResultError("Message cannot be empty"), nil
	}

	out, err := t.coach.SubmitMessage(ctx, usecase.SubmitInput{
		SessionID: stringArg(request, "session_id"),
		Message:   message,
	})
	if err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}

	raw, err := json.MarshalIndent(submitResult{
		SessionID:    out.SessionID,
		Reply:        out.Reply,
		Progress:     out.Progress,
		Percentage:   out.Percentage,
		Status:       string(out.Status),
		NewlyCovered: out.NewlyCovered,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (t *Tools) exportHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(request, "session_id")
	if id == "" {
		return mcp.NewToolResultError("Session ID cannot be empty"), nil
	}
	doc, err := t.coach.ExportSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	return mcp.NewToolResultText(doc), nil
}

func (t *Tools) listHandler(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := t.coach.ListSessions()
	if len(ids) == 0 {
		return mcp.NewToolResultText("No sessions found."), nil
	}
	return mcp.NewToolResultText(strings.Join(ids, "\n")), nil
}

func (t *Tools) deleteHandler(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(request, "session_id")
	if id == "" {
		return mcp.NewToolResultError("Session ID cannot be empty"), nil
	}
	if !t.coach.DeleteSession(id) {
		return mcp.NewToolResultError(fmt.Sprintf("Session '%s' not found.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session '%s' deleted.", id)), nil
}

func (t *Tools) resetHandler(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(request, "session_id")
	if id == "" {
		return mcp.NewToolResultError("Session ID cannot be empty"), nil
	}
	if !t.coach.ResetSession(id) {
		return mcp.NewToolResultError(fmt.Sprintf("Session '%s' not found.", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Progress of session '%s' reset.", id)), nil
}

// describe turns a service error into the text shown to the MCP client.
func describe(err error) string {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		return fmt.Sprintf("%s: %s", ue.Code, ue.Reason)
	}
	return "internal error"
}
