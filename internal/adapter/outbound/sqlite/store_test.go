package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "rdportal.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Error("Open(blank) error = nil")
	}
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rdportal.db")
	for i := 0; i < 2; i++ {
		store, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("Open() #%d error: %v", i, err)
		}
		_ = store.Close()
	}
}

func TestStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	url := "http://gw:8080/guacamole/?data=abc%2B"
	created := time.Date(2026, 6, 1, 8, 30, 0, 123_000_000, time.UTC)
	in := &session.Session{
		ID:            "sess-1",
		TargetAddress: "10.0.0.5",
		DisplayName:   "lab",
		Principal:     "alice",
		CreatedAt:     created,
		GatewayURL:    &url,
		UsesGateway:   true,
	}
	if err := store.Append(ctx, in); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := store.Append(ctx, in); !errors.Is(err, session.ErrDuplicateID) {
		t.Errorf("duplicate Append() error = %v, want ErrDuplicateID", err)
	}
	if err := store.Append(ctx, &session.Session{ID: "sess-2", TargetAddress: "10.0.0.6", CreatedAt: created}); err != nil {
		t.Fatalf("Append(sess-2) error: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("Get() = %+v, want %+v", got, in)
	}

	other, _ := store.Get(ctx, "sess-2")
	if other.GatewayURL != nil || other.UsesGateway {
		t.Errorf("Get(sess-2) gateway fields = %v/%v, want nil/false", other.GatewayURL, other.UsesGateway)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSessionNotFound", err)
	}

	all, err := store.ListAll(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListAll() = %d, %v; want 2", len(all), err)
	}

	removed, err := store.RemoveWhere(ctx, func(s *session.Session) bool { return s.ID == "sess-1" })
	if err != nil || len(removed) != 1 {
		t.Fatalf("RemoveWhere() = %v, %v", removed, err)
	}
	removed, _ = store.RemoveWhere(ctx, func(s *session.Session) bool { return s.ID == "sess-1" })
	if len(removed) != 0 {
		t.Errorf("second RemoveWhere() removed %d", len(removed))
	}

	n, err := store.RemoveAll(ctx)
	if err != nil || n != 1 {
		t.Errorf("RemoveAll() = %d, %v; want 1", n, err)
	}
}

func TestStore_Recent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	record := func(owner, ip string, minute int) {
		t.Helper()
		if err := store.Record(ctx, session.RecentTarget{Owner: owner, Address: ip, UsedAt: base.Add(time.Duration(minute) * time.Minute)}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}
	record("", "10.0.0.1", 0)
	record("", "10.0.0.2", 1)
	record("", "10.0.0.1", 2)
	record("ops", "10.9.9.9", 3)
	for i := 0; i < 6; i++ {
		record("bulk", "172.16.0."+string(rune('0'+i)), 10+i)
	}

	got, err := store.Recent(ctx, "", 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if want := []string{"10.0.0.1", "10.0.0.2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Recent() = %v, want %v", got, want)
	}

	got, _ = store.Recent(ctx, "bulk", 0)
	if len(got) != session.DefaultRecentLimit || got[0] != "172.16.0.5" {
		t.Errorf("Recent(bulk) = %v, want 5 entries starting with 172.16.0.5", got)
	}
}
