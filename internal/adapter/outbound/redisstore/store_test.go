package redisstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

// testStore connects to RDPORTAL_TEST_REDIS_ADDR under a unique prefix, or
// skips when no server is configured.
func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("RDPORTAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RDPORTAL_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := Dial(ctx, addr, "rdportal-test-"+uuid.NewString())
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.rdb.Del(ctx, store.sessionsKey(), store.recentKey()).Err()
		_ = store.Close()
	})
	return store
}

func TestSessionCodec(t *testing.T) {
	t.Parallel()

	url := "http://gw/?data=x"
	in := &session.Session{
		ID:            "sess-1",
		TargetAddress: "10.0.0.5",
		DisplayName:   "lab",
		Principal:     "alice",
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		GatewayURL:    &url,
		UsesGateway:   true,
	}
	data, err := encodeSession(in)
	if err != nil {
		t.Fatalf("encodeSession() error: %v", err)
	}
	out, err := decodeSession(string(data))
	if err != nil {
		t.Fatalf("decodeSession() error: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("decodeSession() = %+v, want %+v", out, in)
	}

	if _, err := decodeSession("{"); err == nil {
		t.Error("decodeSession(invalid) error = nil")
	}
}

func TestDecodeAll_SkipsBadRecords(t *testing.T) {
	t.Parallel()

	good, err := encodeSession(&session.Session{ID: "ok", TargetAddress: "10.0.0.5"})
	if err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	s := New(nil, "", WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	got := s.decodeAll(map[string]string{"ok": string(good), "broken": "{not json"})
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("decodeAll() = %+v, want only the decodable session", got)
	}
	if !strings.Contains(logs.String(), "session_id=broken") {
		t.Errorf("bad record not logged: %s", logs.String())
	}
}

func TestNew_DefaultPrefix(t *testing.T) {
	t.Parallel()

	s := New(nil, "")
	if s.sessionsKey() != "rdportal:sessions" || s.recentKey() != "rdportal:recent" {
		t.Errorf("keys = %q, %q", s.sessionsKey(), s.recentKey())
	}
}

func TestStore_Lifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	in := &session.Session{ID: "sess-1", TargetAddress: "10.0.0.5", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := store.Append(ctx, in); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := store.Append(ctx, in); !errors.Is(err, session.ErrDuplicateID) {
		t.Errorf("duplicate Append() error = %v, want ErrDuplicateID", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
	_ = store.Append(ctx, &session.Session{ID: "sess-2", TargetAddress: "10.0.0.6"})

	removed, err := store.RemoveWhere(ctx, func(s *session.Session) bool { return s.ID == "sess-1" })
	if err != nil || len(removed) != 1 {
		t.Fatalf("RemoveWhere() = %v, %v", removed, err)
	}
	n, err := store.RemoveAll(ctx)
	if err != nil || n != 1 {
		t.Errorf("RemoveAll() = %d, %v; want 1", n, err)
	}
}

func TestStore_Recent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1"} {
		if err := store.Record(ctx, session.RecentTarget{Address: ip, UsedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}
	got, err := store.Recent(ctx, "", 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if want := []string{"10.0.0.1", "10.0.0.2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Recent() = %v, want %v", got, want)
	}
}
