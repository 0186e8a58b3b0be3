package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory. Values are deep-copied on
// the way in and out so callers never share maps with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]any)}
}

// Get returns a copy of the session stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (map[string]any, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Clone(s.data[key]), nil
}

// Set replaces the session stored under key.
func (s *MemoryStore) Set(_ context.Context, key string, data map[string]any) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Clone(data)
	return nil
}

// Delete removes the session stored under key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
