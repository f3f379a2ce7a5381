package memory

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

func TestRecentTargetStore_Recent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecentTargetStore(0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, ip := range []string{"a", "b", "a", "c"} {
		_ = store.Record(ctx, session.RecentTarget{Address: ip, UsedAt: base.Add(time.Duration(i) * time.Second)})
	}

	got, err := store.Recent(ctx, "", 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Recent() = %v, want %v", got, want)
	}
}

func TestRecentTargetStore_Capacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecentTargetStore(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = store.Record(ctx, session.RecentTarget{Address: fmt.Sprintf("10.0.0.%d", i), UsedAt: base.Add(time.Duration(i) * time.Second)})
	}

	got, _ := store.Recent(ctx, "", 10)
	if want := []string{"10.0.0.4", "10.0.0.3", "10.0.0.2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Recent() = %v, want %v", got, want)
	}
}
