package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/netcore-rdp/rdportal/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.Limiter with GCRA over an in-process map.
// Limits are per instance; replicas behind a load balancer each count
// separately. A background sweep drops idle keys.
type RateLimiter struct {
	cells           map[string]time.Time // theoretical arrival time per key
	mu              sync.Mutex
	now             func() time.Time
	logger          *slog.Logger
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxIdle         time.Duration
}

// RateLimiterOption configures RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterClock overrides the time source.
func WithRateLimiterClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) { r.now = now }
}

// WithRateLimiterCleanup sets how often idle keys are swept and how long a
// key must be idle before it is dropped.
func WithRateLimiterCleanup(interval, maxIdle time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		r.cleanupInterval = interval
		r.maxIdle = maxIdle
	}
}

// NewRateLimiter creates a limiter sweeping every 5 minutes for keys idle
// longer than an hour.
func NewRateLimiter(logger *slog.Logger, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		cells:           make(map[string]time.Time),
		now:             time.Now,
		logger:          logger,
		stopChan:        make(chan struct{}),
		cleanupInterval: 5 * time.Minute,
		maxIdle:         time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow admits the request when the key's theoretical arrival time, advanced
// by one emission interval, stays within the burst window.
func (r *RateLimiter) Allow(_ context.Context, key string, limit ratelimit.Limit) (ratelimit.Result, error) {
	emission := limit.Emission()
	burst := limit.EffectiveBurst()
	window := time.Duration(burst) * emission

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	tat, ok := r.cells[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	next := tat.Add(emission)
	if next.Sub(now) > window {
		return ratelimit.Result{
			Allowed:    false,
			RetryAfter: next.Sub(now) - window,
			ResetAfter: tat.Sub(now),
		}, nil
	}
	r.cells[key] = next

	remaining := int((window - next.Sub(now)) / emission)
	return ratelimit.Result{
		Allowed:    true,
		Remaining:  min(max(remaining, 0), burst),
		ResetAfter: next.Sub(now),
	}, nil
}

// StartCleanup runs the idle-key sweep until ctx is cancelled or Stop is
// called.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup drops keys whose arrival time is older than maxIdle.
func (r *RateLimiter) cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.maxIdle)
	cleaned := 0
	for key, tat := range r.cells {
		if tat.Before(cutoff) {
			delete(r.cells, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		r.logger.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(r.cells))
	}
	return cleaned
}

// Stop ends the sweep and waits for it to exit. Safe to call repeatedly.
func (r *RateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the number of tracked keys.
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

var _ ratelimit.Limiter = (*RateLimiter)(nil)
