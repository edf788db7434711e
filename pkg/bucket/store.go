package bucket

import (
	"context"
	"sync"
	"time"
)

// Store persists bucket state by key. Implementations do not need to
// provide any concurrency control beyond their own internal safety: all
// reads and writes for one key are serialized by that key's actor.
type Store interface {
	// Load returns the state for key, or (nil, nil) when none exists.
	Load(ctx context.Context, key string) (*State, error)
	// Save writes the state for key. ttl bounds how long a cold bucket is
	// kept; implementations may ignore it.
	Save(ctx context.Context, key string, st *State, ttl time.Duration) error
	// Delete removes the state for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps bucket state in process memory. Suitable for
// single-node deployments and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	if !ok {
		return nil, nil
	}
	// Copy so callers never alias the stored value.
	out := st
	return &out, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, st *State, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = *st
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

// Len reports the number of persisted buckets. Used by diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
