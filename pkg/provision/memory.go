package provision

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory UserStore for tests and single-node
// deployments
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*UserRecord
	bySubject map[string]string
	byEmail   map[string]string
}

// NewMemoryStore creates an empty in-memory user store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*UserRecord),
		bySubject: make(map[string]string),
		byEmail:   make(map[string]string),
	}
}

// FindBySubject returns the user with the given external subject, or nil
func (s *MemoryStore) FindBySubject(_ context.Context, subject string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.bySubject[subject]; ok {
		return copyRecord(s.byID[id]), nil
	}
	return nil, nil
}

// FindByEmail returns the user with the given email, or nil
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byEmail[email]; ok {
		return copyRecord(s.byID[id]), nil
	}
	return nil, nil
}

// FindByID returns the user with the given local id, or nil
func (s *MemoryStore) FindByID(_ context.Context, localID string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.byID[localID]; ok {
		return copyRecord(user), nil
	}
	return nil, nil
}

// Create stores a new user, enforcing uniqueness on email and subject
func (s *MemoryStore) Create(_ context.Context, user *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return fmt.Errorf("user with email %q already exists", user.Email)
	}
	if _, exists := s.bySubject[user.ExternalSubject]; exists && user.ExternalSubject != "" {
		return fmt.Errorf("user with subject %q already exists", user.ExternalSubject)
	}

	s.byID[user.LocalID] = copyRecord(user)
	s.byEmail[user.Email] = user.LocalID
	if user.ExternalSubject != "" {
		s.bySubject[user.ExternalSubject] = user.LocalID
	}
	return nil
}

// Update replaces an existing user record and refreshes the indexes
func (s *MemoryStore) Update(_ context.Context, user *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[user.LocalID]
	if !ok {
		return fmt.Errorf("user %q not found", user.LocalID)
	}

	if existing.Email != user.Email {
		if _, taken := s.byEmail[user.Email]; taken {
			return fmt.Errorf("user with email %q already exists", user.Email)
		}
		delete(s.byEmail, existing.Email)
	}
	if existing.ExternalSubject != user.ExternalSubject {
		delete(s.bySubject, existing.ExternalSubject)
	}

	s.byID[user.LocalID] = copyRecord(user)
	s.byEmail[user.Email] = user.LocalID
	if user.ExternalSubject != "" {
		s.bySubject[user.ExternalSubject] = user.LocalID
	}
	return nil
}

func copyRecord(user *UserRecord) *UserRecord {
	if user == nil {
		return nil
	}
	clone := *user
	return &clone
}
