package session

import (
	"sort"
	"sync"
)

// Factory builds the session for a new id.
type Factory func(id string) (*Session, error)

// InMemoryStore is a volatile, process-local registry of sessions. It is
// safe for concurrent access. Sessions are created lazily on first Get.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
}

// NewInMemoryStore constructs an empty store that creates sessions with factory.
func NewInMemoryStore(factory Factory) *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session), factory: factory}
}

// Get returns the session for id, creating it if needed.
func (s *InMemoryStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return s.createLocked(id)
}

// Create forces the creation (or replacement) of the session for id.
func (s *InMemoryStore) Create(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(id)
}

// Delete removes the session for id and reports whether it existed.
func (s *InMemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// IDs returns the ids of all sessions in sorted order.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// createLocked allocates and stores a new session; caller must hold the
// write lock.
func (s *InMemoryStore) createLocked(id string) (*Session, error) {
	sess, err := s.factory(id)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = sess.ID()
	}
	s.sessions[id] = sess
	return sess, nil
}
