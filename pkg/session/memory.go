package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory session store for tests and single-node
// deployments. Revocation is immediately visible to all goroutines.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Record
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Record)}
}

// Save stores a session record
func (s *MemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.sessions[record.ID] = &clone
	return nil
}

// Find returns the session with the given id, or nil
func (s *MemoryStore) Find(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteExpired removes all sessions that expired at or before now
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.sessions {
		if record.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
