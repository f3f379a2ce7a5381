package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/netcore-rdp/rdportal/internal/domain/reachability"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestProbeCache_ReusesWithinTTL(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: testNow}
	prober := &stubProber{reachable: true}
	cache := NewProbeCache(prober, testLogger(),
		WithProbeCacheTTL(5*time.Second),
		WithProbeCacheClock(clock.Now),
	)
	ctx := context.Background()

	if !cache.Probe(ctx, "10.0.0.5") {
		t.Fatal("first Probe() = false, want true")
	}
	prober.reachable = false

	clock.Advance(4 * time.Second)
	if !cache.Probe(ctx, " 10.0.0.5 ") {
		t.Error("cached Probe() = false, want cached true")
	}
	if prober.calls.Load() != 1 {
		t.Errorf("prober calls = %d, want 1", prober.calls.Load())
	}

	clock.Advance(2 * time.Second)
	if cache.Probe(ctx, "10.0.0.5") {
		t.Error("Probe() after TTL = true, want fresh false")
	}
	if prober.calls.Load() != 2 {
		t.Errorf("prober calls = %d, want 2", prober.calls.Load())
	}
	if cache.Hits() != 1 || cache.Misses() != 2 {
		t.Errorf("hits = %d, misses = %d, want 1 and 2", cache.Hits(), cache.Misses())
	}
}

func TestProbeCache_DistinctAddresses(t *testing.T) {
	t.Parallel()

	prober := &stubProber{reachable: true}
	cache := NewProbeCache(prober, testLogger())
	ctx := context.Background()

	cache.Probe(ctx, "10.0.0.1")
	cache.Probe(ctx, "10.0.0.2")
	cache.Probe(ctx, "HOST.lan")
	cache.Probe(ctx, "host.lan")

	if prober.calls.Load() != 3 {
		t.Errorf("prober calls = %d, want 3", prober.calls.Load())
	}
	if cache.Size() != 3 {
		t.Errorf("Size() = %d, want 3", cache.Size())
	}
}

func TestProbeCache_Disabled(t *testing.T) {
	t.Parallel()

	prober := &stubProber{reachable: true}
	cache := NewProbeCache(prober, testLogger(), WithProbeCacheTTL(0))

	for i := 0; i < 3; i++ {
		cache.Probe(context.Background(), "10.0.0.5")
	}
	if prober.calls.Load() != 3 {
		t.Errorf("prober calls = %d, want 3", prober.calls.Load())
	}
	if cache.Size() != 0 {
		t.Errorf("Size() = %d, want 0", cache.Size())
	}
}

func TestProbeCache_CancelledContextNotCached(t *testing.T) {
	t.Parallel()

	prober := &stubProber{reachable: false}
	cache := NewProbeCache(prober, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cache.Probe(ctx, "10.0.0.5")

	if cache.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after cancelled probe", cache.Size())
	}
}

func TestProbeCache_Invalidate(t *testing.T) {
	t.Parallel()

	prober := &stubProber{reachable: true}
	cache := NewProbeCache(prober, testLogger())
	ctx := context.Background()

	cache.Probe(ctx, "10.0.0.5")
	cache.Invalidate("10.0.0.5")
	cache.Probe(ctx, "10.0.0.5")

	if prober.calls.Load() != 2 {
		t.Errorf("prober calls = %d, want 2", prober.calls.Load())
	}
}

func TestProbeCache_WithRealProber(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	cache := NewProbeCache(reachability.NewProber(reachability.WithPort(port), reachability.WithTimeout(time.Second)), testLogger())
	addr := "127.0.0.1"

	if !cache.Probe(context.Background(), addr) {
		t.Errorf("Probe(%s) = false, want true", addr)
	}

	_ = ln.Close()
	<-done

	if !cache.Probe(context.Background(), addr) {
		t.Error("cached Probe() = false after listener closed, want cached true")
	}
	cache.Invalidate(addr)
	if cache.Probe(context.Background(), addr) {
		t.Error("Probe() after invalidate = true, want false")
	}
}
