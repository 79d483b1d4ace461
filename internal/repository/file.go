package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"design-coach/internal/domain"
)

// FileArchive keeps one JSON document per session and day, named
// {session}_{YYYYMMDD}.json, rewritten after every turn with the full
// history.
type FileArchive struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) (*FileArchive, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("repository: archive dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("repository: create archive dir: %w", err)
	}
	return &FileArchive{dir: dir}, nil
}

func (a *FileArchive) path(turn domain.Turn) string {
	return filepath.Join(a.dir, fmt.Sprintf("%s_%s.json", turn.SessionID, turn.RecordedAt.UTC().Format("20060102")))
}

func (a *FileArchive) SaveTurn(ctx context.Context, turn domain.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if turn.SessionID == "" || strings.ContainsAny(turn.SessionID, `/\`) {
		return fmt.Errorf("repository: invalid session id %q", turn.SessionID)
	}
	raw, err := json.MarshalIndent(turn, "", "  ")
	if err != nil {
		return fmt.Errorf("repository: marshal turn: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	target := a.path(turn)
	tmp, err := os.CreateTemp(a.dir, ".turn-*")
	if err != nil {
		return fmt.Errorf("repository: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("repository: write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("repository: close %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("repository: replace %s: %w", target, err)
	}
	return nil
}

func (a *FileArchive) Close() error { return nil }
