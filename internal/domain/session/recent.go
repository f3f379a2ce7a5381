package session

import (
	"context"
	"sort"
	"time"
)

// DefaultRecentLimit is the number of recent targets returned when the
// caller does not ask for a specific count.
const DefaultRecentLimit = 5

// RecentTarget is one entry in the connection history.
type RecentTarget struct {
	// Owner is the API key name that recorded the entry, empty for
	// anonymous connects.
	Owner   string    `json:"owner,omitempty"`
	Address string    `json:"ip"`
	UsedAt  time.Time `json:"used_at"`
}

// RecentTargetStore keeps the history of targets connected to.
type RecentTargetStore interface {
	// Record appends an entry to the history.
	Record(ctx context.Context, t RecentTarget) error

	// Recent returns up to n distinct addresses recorded by owner, most
	// recently used first. n <= 0 means DefaultRecentLimit.
	Recent(ctx context.Context, owner string, n int) ([]string, error)
}

// MostRecent reduces entries to at most n distinct addresses, newest first.
// Stores use it so every backend orders and deduplicates the same way.
func MostRecent(entries []RecentTarget, owner string, n int) []string {
	if n <= 0 {
		n = DefaultRecentLimit
	}

	filtered := make([]RecentTarget, 0, len(entries))
	for _, e := range entries {
		if e.Owner == owner {
			filtered = append(filtered, e)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].UsedAt.After(filtered[j].UsedAt)
	})

	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for _, e := range filtered {
		if _, dup := seen[e.Address]; dup {
			continue
		}
		seen[e.Address] = struct{}{}
		out = append(out, e.Address)
		if len(out) == n {
			break
		}
	}
	return out
}
