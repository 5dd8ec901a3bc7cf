package lockout

import (
	"context"
	"sync"
	"time"
)

type attemptState struct {
	failures      int
	lastAttemptAt time.Time
}

// MemoryStore is an in-process Tracker for single-instance deployments and
// tests. A single mutex serializes all keys; contention is negligible at
// login-attempt rates.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*attemptState
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*attemptState),
		now:    time.Now,
	}
}

func (s *MemoryStore) IsLocked(ctx context.Context, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[identifier]
	if !ok {
		return false, nil
	}

	if state.failures >= Threshold {
		if s.now().UTC().Before(state.lastAttemptAt.Add(Window)) {
			return true, nil
		}
		// Window elapsed: the lock is already over, zero the stale
		// counter so the next failure starts a fresh run. Holding the
		// mutex here means a concurrent fresh failure cannot be erased.
		state.failures = 0
	}

	return false, nil
}

func (s *MemoryStore) RecordFailure(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[identifier]
	if !ok {
		state = &attemptState{}
		s.states[identifier] = state
	}

	state.failures++
	state.lastAttemptAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) RecordSuccess(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[identifier]; ok {
		state.failures = 0
		state.lastAttemptAt = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) Unlock(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[identifier]; ok {
		state.failures = 0
	}
	return nil
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for identifier, state := range s.states {
		if state.lastAttemptAt.Before(cutoff) {
			delete(s.states, identifier)
			deleted++
		}
	}
	return deleted, nil
}
