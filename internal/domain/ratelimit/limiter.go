package ratelimit

import "context"

// Limiter decides whether the caller identified by key may make another
// request under limit.
//
// Implementations use GCRA (Generic Cell Rate Algorithm), which spreads
// requests evenly instead of resetting at window boundaries. Allow records
// the request when it is allowed; a denied request leaves no trace.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (Result, error)
}
