package service

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Prober checks whether a remote-desktop endpoint accepts connections.
// reachability.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, address string) bool
}

// DefaultProbeCacheTTL is how long a probe result is reused.
const DefaultProbeCacheTTL = 5 * time.Second

type probeResult struct {
	reachable bool
	checkedAt time.Time
}

// ProbeCache memoizes probe results for a short TTL, keyed by an xxhash of
// the normalized address. The wrapped prober stays stateless; only the
// cache holds state. A non-positive TTL disables caching.
type ProbeCache struct {
	prober Prober
	cache  *lruCache[probeResult]
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	inst   *instruments

	hits   atomic.Int64
	misses atomic.Int64
}

// ProbeCacheOption configures ProbeCache.
type ProbeCacheOption func(*ProbeCache)

// WithProbeCacheTTL sets how long results are reused.
func WithProbeCacheTTL(ttl time.Duration) ProbeCacheOption {
	return func(c *ProbeCache) {
		c.ttl = ttl
	}
}

// WithProbeCacheSize bounds the number of cached addresses.
func WithProbeCacheSize(size int) ProbeCacheOption {
	return func(c *ProbeCache) {
		c.cache = newLRUCache[probeResult](size)
	}
}

// WithProbeCacheClock overrides the time source.
func WithProbeCacheClock(now func() time.Time) ProbeCacheOption {
	return func(c *ProbeCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewProbeCache wraps prober with a TTL cache.
func NewProbeCache(prober Prober, logger *slog.Logger, opts ...ProbeCacheOption) *ProbeCache {
	c := &ProbeCache{
		prober: prober,
		cache:  newLRUCache[probeResult](1024),
		ttl:    DefaultProbeCacheTTL,
		now:    time.Now,
		logger: logger,
		inst:   newInstruments(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Probe returns the cached result for address when it is younger than the
// TTL, otherwise probes and caches the outcome. Results obtained under a
// cancelled context are not cached.
func (c *ProbeCache) Probe(ctx context.Context, address string) bool {
	normalized := strings.ToLower(strings.TrimSpace(address))
	key := hashFields(normalized)

	ctx, span := c.inst.tracer.Start(ctx, "reachability.Probe")
	defer span.End()
	span.SetAttributes(attribute.String("rdp.target", normalized))

	if c.ttl > 0 {
		if r, ok := c.cache.Get(key); ok {
			if c.now().Sub(r.checkedAt) < c.ttl {
				c.hits.Add(1)
				c.record(ctx, r.reachable, true)
				span.SetAttributes(attribute.Bool("rdp.reachable", r.reachable), attribute.Bool("cache.hit", true))
				return r.reachable
			}
			c.cache.Delete(key)
		}
	}
	c.misses.Add(1)

	start := time.Now()
	reachable := c.prober.Probe(ctx, address)
	c.inst.probeLatency.Record(ctx, time.Since(start).Seconds())
	c.record(ctx, reachable, false)
	span.SetAttributes(attribute.Bool("rdp.reachable", reachable), attribute.Bool("cache.hit", false))

	if c.ttl > 0 && ctx.Err() == nil {
		c.cache.Put(key, probeResult{reachable: reachable, checkedAt: c.now()})
	}

	c.logger.Debug("probe completed",
		"target", address,
		"reachable", reachable,
		"duration", time.Since(start),
	)
	return reachable
}

// Invalidate drops any cached result for address.
func (c *ProbeCache) Invalidate(address string) {
	c.cache.Delete(hashFields(strings.ToLower(strings.TrimSpace(address))))
}

// Hits returns the number of probes answered from the cache.
func (c *ProbeCache) Hits() int64 {
	return c.hits.Load()
}

// Misses returns the number of probes that reached the network.
func (c *ProbeCache) Misses() int64 {
	return c.misses.Load()
}

// Size returns the number of cached addresses, including expired ones not
// yet looked up again.
func (c *ProbeCache) Size() int {
	return c.cache.Size()
}

func (c *ProbeCache) record(ctx context.Context, reachable, cached bool) {
	c.inst.probes.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("reachable", reachable),
		attribute.Bool("cached", cached),
	))
}
