// Package ratelimit provides the types for throttling connect and probe
// requests per caller.
package ratelimit

import (
	"fmt"
	"time"
)

// Limit defines the rate limiting parameters.
type Limit struct {
	// Rate is the number of allowed events in the period.
	Rate int

	// Burst is how many events may arrive back to back. Zero means Rate.
	Burst int

	// Period is the time window for Rate.
	Period time.Duration
}

// Emission is the steady-state spacing between allowed events.
func (l Limit) Emission() time.Duration {
	rate := l.Rate
	if rate <= 0 {
		rate = 1
	}
	return l.Period / time.Duration(rate)
}

// EffectiveBurst returns Burst, or Rate when Burst is unset.
func (l Limit) EffectiveBurst() int {
	switch {
	case l.Burst > 0:
		return l.Burst
	case l.Rate > 0:
		return l.Rate
	default:
		return 1
	}
}

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Remaining is how many more requests would be allowed right now.
	Remaining int

	// RetryAfter is the wait until the next request will be allowed.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration

	// ResetAfter is the wait until the full burst is available again.
	ResetAfter time.Duration
}

// Scope identifies what a rate limit key is counted against.
type Scope string

const (
	// ScopeClient counts anonymous callers by client IP.
	ScopeClient Scope = "client"

	// ScopeOwner counts authenticated callers by API key name.
	ScopeOwner Scope = "owner"
)

// Key returns a structured rate limit key, e.g. "ratelimit:client:10.0.0.9".
func Key(scope Scope, value string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, value)
}
