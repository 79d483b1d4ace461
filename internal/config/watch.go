package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the store whenever its file changes, until ctx is done.
// The parent directory is watched because editors often replace the file
// instead of writing it in place. onReload, when non-nil, observes every
// attempt.
func (s *Store) Watch(ctx context.Context, onReload func(*Config, error)) error {
	if s.path == "" {
		return &Error{Msg: "store has no backing file"}
	}
	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("config: resolve watch path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(target), err)
	}
	slog.Info("watching configuration file", "path", target)

	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("configuration watcher error", "err", err)
		case <-debounce.C:
			cfg, err := s.Reload()
			if onReload != nil {
				onReload(cfg, err)
			}
		}
	}
}
