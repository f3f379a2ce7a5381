// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

// SessionStore implements session.SessionStore with an in-memory map.
// Thread-safe for concurrent access. Records are copied on the way in and
// out so callers never share memory with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session.Session)}
}

// Append stores a new session.
func (s *SessionStore) Append(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return session.ErrDuplicateID
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// ListAll returns copies of every stored session.
func (s *SessionStore) ListAll(_ context.Context) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out, nil
}

// RemoveWhere deletes every session matched by match.
func (s *SessionStore) RemoveWhere(_ context.Context, match func(*session.Session) bool) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*session.Session
	for id, sess := range s.sessions {
		if match(sess.Clone()) {
			removed = append(removed, sess)
			delete(s.sessions, id)
		}
	}
	return removed, nil
}

// RemoveAll deletes every session.
func (s *SessionStore) RemoveAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.sessions)
	s.sessions = make(map[string]*session.Session)
	return n, nil
}

// Size returns the number of sessions currently stored.
func (s *SessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Compile-time interface verification.
var _ session.SessionStore = (*SessionStore)(nil)
