package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
	"go.uber.org/goleak"
)

func TestSessionStore_AppendAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	url := "http://gw/"
	in := &session.Session{ID: "sess-1", TargetAddress: "10.0.0.5", GatewayURL: &url, CreatedAt: time.Now().UTC()}
	if err := store.Append(ctx, in); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	// Mutating the caller's copy must not reach the store.
	*in.GatewayURL = "mutated"
	in.TargetAddress = "mutated"

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.TargetAddress != "10.0.0.5" || *got.GatewayURL != "http://gw/" {
		t.Errorf("Get() = %+v, store shares memory with caller", got)
	}
}

func TestSessionStore_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
	_ = store.Append(ctx, &session.Session{ID: "dup"})
	if err := store.Append(ctx, &session.Session{ID: "dup"}); !errors.Is(err, session.ErrDuplicateID) {
		t.Errorf("Append() error = %v, want ErrDuplicateID", err)
	}
}

func TestSessionStore_RemoveWhereAndRemoveAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()
	for i := 0; i < 4; i++ {
		_ = store.Append(ctx, &session.Session{ID: fmt.Sprintf("s%d", i), TargetAddress: fmt.Sprintf("10.0.0.%d", i%2)})
	}

	removed, err := store.RemoveWhere(ctx, func(s *session.Session) bool { return s.TargetAddress == "10.0.0.1" })
	if err != nil {
		t.Fatalf("RemoveWhere() error: %v", err)
	}
	if len(removed) != 2 || store.Size() != 2 {
		t.Errorf("RemoveWhere() removed %d, size %d; want 2 and 2", len(removed), store.Size())
	}

	n, err := store.RemoveAll(ctx)
	if err != nil || n != 2 {
		t.Errorf("RemoveAll() = %d, %v; want 2", n, err)
	}
	if n, _ := store.RemoveAll(ctx); n != 0 {
		t.Errorf("RemoveAll() on empty = %d, want 0", n)
	}
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := NewSessionStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("s-%d-%d", i, j)
				_ = store.Append(ctx, &session.Session{ID: id})
				_, _ = store.Get(ctx, id)
				_, _ = store.ListAll(ctx)
				if j%2 == 0 {
					_, _ = store.RemoveWhere(ctx, func(s *session.Session) bool { return s.ID == id })
				}
			}
		}(i)
	}
	wg.Wait()

	if store.Size() != 250 {
		t.Errorf("Size() = %d, want 250", store.Size())
	}
}
