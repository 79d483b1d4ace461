package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Store holds the live configuration snapshot. Current never blocks; Reload
// swaps in a new snapshot only when the file parses and validates.
type Store struct {
	path    string
	lookup  LookupFunc
	current atomic.Pointer[Config]
	mu      sync.Mutex // serializes reloads
}

// NewStore loads path and returns a Store serving it. A failure here is fatal
// to startup; there is no previous config to fall back to.
func NewStore(path string) (*Store, error) {
	return newStore(path, os.LookupEnv)
}

func newStore(path string, lookup LookupFunc) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config: path must not be empty")
	}
	cfg, err := load(path, lookup)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, lookup: lookup}
	s.current.Store(cfg)
	slog.Info("configuration loaded", "path", path, "stages", len(cfg.Framework.Stages), "mock", cfg.Model.MockResponses)
	return s, nil
}

// NewStaticStore serves cfg without a backing file; Reload always fails.
// Useful for tests and embedding.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{lookup: os.LookupEnv}
	s.current.Store(cfg)
	return s
}

// Path returns the file the store reloads from.
func (s *Store) Path() string {
	return s.path
}

// Current returns the latest successfully loaded snapshot.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reload re-reads the file. On any error the previous snapshot stays active
// and the error is returned.
func (s *Store) Reload() (*Config, error) {
	if s.path == "" {
		return nil, &Error{Msg: "store has no backing file"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := load(s.path, s.lookup)
	if err != nil {
		slog.Warn("configuration reload rejected, keeping previous config", "path", s.path, "err", err)
		return nil, err
	}
	s.current.Store(cfg)
	slog.Info("configuration reloaded", "path", s.path, "stages", len(cfg.Framework.Stages), "mock", cfg.Model.MockResponses)
	return cfg, nil
}
