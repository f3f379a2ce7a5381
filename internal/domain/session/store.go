package session

import (
	"context"
	"errors"
)

// SessionStore provides session persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementations: memory, file (state.json), sqlite, redis.
//
// Stores copy records on the way in and out; callers may not observe
// partially written sessions. Serialization of mutations is the
// Registry's job, not the store's.
type SessionStore interface {
	// Append stores a new session.
	// Returns ErrDuplicateID if a session with the same ID exists.
	Append(ctx context.Context, s *Session) error

	// Get returns the session with the given ID.
	// Returns ErrSessionNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*Session, error)

	// ListAll returns every stored session in no particular order.
	ListAll(ctx context.Context) ([]*Session, error)

	// RemoveWhere deletes every session for which match returns true and
	// returns the removed records.
	RemoveWhere(ctx context.Context, match func(*Session) bool) ([]*Session, error)

	// RemoveAll deletes every session and returns how many were removed.
	RemoveAll(ctx context.Context) (int, error)
}

var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateID is returned when a session ID is already registered.
	ErrDuplicateID = errors.New("session id already exists")
)
