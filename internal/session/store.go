// Package session keeps per-session conversation state in memory.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"design-coach/internal/domain"
	"design-coach/internal/progress"
)

var ErrNotFound = errors.New("session: not found")

// StageKeysFunc returns the currently configured stage keys. It is consulted
// on every access so progress maps follow config reloads.
type StageKeysFunc func() []string

// Store owns every ConversationState. Callers only ever see deep copies.
//
// The map lock is held for lookup, insert and delete. Each entry carries its
// own mutex for state access and a turn slot that serializes whole
// request/reply turns on one session without blocking readers.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	stageKeys StageKeysFunc
	now       func() time.Time
}

type entry struct {
	mu      sync.Mutex
	state   domain.ConversationState
	deleted bool
	turn    chan struct{}
}

func NewStore(stageKeys StageKeysFunc) (*Store, error) {
	if stageKeys == nil {
		return nil, errors.New("session: stage keys func must not be nil")
	}
	return &Store{
		entries:   make(map[string]*entry),
		stageKeys: stageKeys,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetOrCreate returns the session, creating an empty one when absent. An
// existing session counts as active, so the sweeper will not evict it before
// the caller's turn starts.
func (s *Store) GetOrCreate(id string) (domain.ConversationState, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e.touch(s.now(), s.stageKeys()), false
	}

	s.mu.Lock()
	e, ok = s.entries[id]
	created := !ok
	if created {
		now := s.now()
		e = &entry{
			state: domain.ConversationState{
				ID:           id,
				Messages:     []domain.Message{},
				Progress:     progress.Reconcile(nil, s.stageKeys()),
				Evidence:     map[string]int{},
				CreatedAt:    now,
				LastActivity: now,
			},
			turn: make(chan struct{}, 1),
		}
		s.entries[id] = e
	}
	s.mu.Unlock()
	return e.touch(s.now(), s.stageKeys()), created
}

// Get returns the session without creating it.
func (s *Store) Get(id string) (domain.ConversationState, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return domain.ConversationState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.ConversationState{}, false
	}
	e.reconcile(s.stageKeys())
	return e.state.Clone(), true
}

// Append records msg and bumps last activity.
func (s *Store) Append(id string, msg domain.Message) error {
	_, err := s.Update(id, func(st *domain.ConversationState) error {
		st.Messages = append(st.Messages, msg)
		return nil
	})
	return err
}

// Update applies fn to a copy of the session and commits the copy only when
// fn returns nil. Last activity is bumped on commit.
func (s *Store) Update(id string, fn func(*domain.ConversationState) error) (domain.ConversationState, error) {
	e, ok := s.lookup(id)
	if !ok {
		return domain.ConversationState{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.ConversationState{}, ErrNotFound
	}
	keys := s.stageKeys()
	e.reconcile(keys)

	next := e.state.Clone()
	if err := fn(&next); err != nil {
		return domain.ConversationState{}, err
	}
	next.LastActivity = s.now()
	e.state = next
	e.reconcile(keys)
	return e.state.Clone(), nil
}

// Delete removes the session. In-flight updates on it fail with ErrNotFound.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return true
}

// List returns all session ids, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ResetProgress clears coverage and evidence but keeps the history.
func (s *Store) ResetProgress(id string) bool {
	_, err := s.Update(id, func(st *domain.ConversationState) error {
		st.Progress = progress.Reconcile(nil, s.stageKeys())
		st.Evidence = map[string]int{}
		return nil
	})
	return err == nil
}

// Sweep evicts sessions idle for longer than idle and returns their ids,
// sorted. Sessions with a turn in flight are skipped. A non-positive idle
// evicts nothing.
func (s *Store) Sweep(idle time.Duration) []string {
	if idle <= 0 {
		return nil
	}
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var evicted []string
	for id, e := range s.entries {
		e.mu.Lock()
		busy := len(e.turn) > 0
		if !busy && e.state.LastActivity.Before(cutoff) {
			e.deleted = true
			delete(s.entries, id)
			evicted = append(evicted, id)
		}
		e.mu.Unlock()
	}
	s.mu.Unlock()
	sort.Strings(evicted)
	return evicted
}

// AcquireTurn waits for exclusive use of the session's turn slot. The
// returned func releases it and must be called exactly once.
func (s *Store) AcquireTurn(ctx context.Context, id string) (func(), error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	e.mu.Lock()
	deleted := e.deleted
	e.mu.Unlock()
	if deleted {
		<-e.turn
		return nil, ErrNotFound
	}
	var once sync.Once
	return func() { once.Do(func() { <-e.turn }) }, nil
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (e *entry) touch(now time.Time, keys []string) domain.ConversationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now.After(e.state.LastActivity) {
		e.state.LastActivity = now
	}
	e.reconcile(keys)
	return e.state.Clone()
}

// reconcile aligns progress and evidence with keys. Caller holds e.mu.
func (e *entry) reconcile(keys []string) {
	e.state.Progress = progress.Reconcile(e.state.Progress, keys)
	for k := range e.state.Evidence {
		if _, ok := e.state.Progress[k]; !ok {
			delete(e.state.Evidence, k)
		}
	}
}
