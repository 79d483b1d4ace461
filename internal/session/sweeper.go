package session

import (
	"context"
	"log/slog"
	"time"
)

// EvictCallback observes sessions removed by the sweeper.
type EvictCallback func(ids []string)

// RunSweeper evicts sessions idle longer than ttl every interval until ctx is
// done. It blocks; run it in its own goroutine.
func RunSweeper(ctx context.Context, store *Store, interval, ttl time.Duration, onEvict EvictCallback) error {
	if ttl <= 0 || interval <= 0 {
		slog.Info("session sweeper disabled", "ttl", ttl, "interval", interval)
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("session sweeper started", "interval", interval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			evicted := store.Sweep(ttl)
			if len(evicted) == 0 {
				continue
			}
			slog.Info("session sweeper evicted idle sessions", "count", len(evicted))
			if onEvict != nil {
				onEvict(evicted)
			}
		case <-ctx.Done():
			slog.Info("session sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}
