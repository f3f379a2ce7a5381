package memory

import (
	"context"
	"sync"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

// DefaultRecentCapacity bounds the in-memory connect history.
const DefaultRecentCapacity = 500

// RecentTargetStore implements session.RecentTargetStore with a bounded
// slice. The oldest entries are dropped once capacity is reached.
type RecentTargetStore struct {
	mu       sync.Mutex
	entries  []session.RecentTarget
	capacity int
}

// NewRecentTargetStore creates a store holding at most capacity entries.
// capacity <= 0 means DefaultRecentCapacity.
func NewRecentTargetStore(capacity int) *RecentTargetStore {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentTargetStore{capacity: capacity}
}

// Record appends an entry.
func (s *RecentTargetStore) Record(_ context.Context, t session.RecentTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, t)
	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return nil
}

// Recent returns up to n distinct addresses recorded by owner, newest first.
func (s *RecentTargetStore) Recent(_ context.Context, owner string, n int) ([]string, error) {
	s.mu.Lock()
	snapshot := make([]session.RecentTarget, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	return session.MostRecent(snapshot, owner, n), nil
}

// Compile-time interface verification.
var _ session.RecentTargetStore = (*RecentTargetStore)(nil)
