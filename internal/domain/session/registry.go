package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry owns the set of active sessions. Mutations are serialized by a
// single mutex so check-then-act sequences are atomic with respect to each
// other. Listing takes the read lock.
//
// Aged-out sessions are hidden from List but stay in the store until they
// are removed explicitly.
type Registry struct {
	mu    sync.RWMutex
	store SessionStore
	now   func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces the wall clock used for status derivation.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a Registry backed by store.
func NewRegistry(store SessionStore, opts ...RegistryOption) *Registry {
	r := &Registry{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers s. Returns ErrDuplicateID if the ID is already present.
func (r *Registry) Create(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.store.Get(ctx, s.ID)
	switch {
	case err == nil:
		return ErrDuplicateID
	case !errors.Is(err, ErrSessionNotFound):
		return fmt.Errorf("failed to check session %s: %w", s.ID, err)
	}
	if err := r.store.Append(ctx, s); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	return nil
}

// Get returns a stored session regardless of its age.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Get(ctx, id)
}

// List returns the sessions younger than MaxAge, newest first, each with
// its derived status. It never modifies the store.
func (r *Registry) List(ctx context.Context) ([]View, error) {
	r.mu.RLock()
	all, err := r.store.ListAll(ctx)
	r.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := r.now()
	views := make([]View, 0, len(all))
	for _, s := range all {
		age := now.Sub(s.CreatedAt)
		if age < 0 {
			age = 0
		}
		status, ok := DeriveStatus(age)
		if !ok {
			continue
		}
		views = append(views, View{
			SessionID:     s.ID,
			IP:            s.TargetAddress,
			Name:          s.DisplayName,
			Username:      s.Principal,
			CreatedAt:     s.CreatedAt,
			GuacamoleURL:  s.GatewayURL,
			UseGuacamole:  s.UsesGateway,
			Status:        status,
			StatusMessage: status.Message(),
			AgeSeconds:    int64(age / time.Second),
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views, nil
}

// Remove deletes the session with the given ID and returns it.
// Returns ErrSessionNotFound if no such session exists.
func (r *Registry) Remove(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed, err := r.store.RemoveWhere(ctx, func(s *Session) bool { return s.ID == id })
	if err != nil {
		return nil, fmt.Errorf("failed to remove session: %w", err)
	}
	if len(removed) == 0 {
		return nil, ErrSessionNotFound
	}
	return removed[0], nil
}

// RemoveAll deletes every session and returns how many were removed.
func (r *Registry) RemoveAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.store.RemoveAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to remove sessions: %w", err)
	}
	return n, nil
}

// Count returns the number of stored sessions, including aged-out ones.
func (r *Registry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}
