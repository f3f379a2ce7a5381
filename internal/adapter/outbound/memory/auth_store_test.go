package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/netcore-rdp/rdportal/internal/domain/auth"
)

func TestKeyStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hash := auth.HashKey("secret")
	store := NewKeyStore(&auth.APIKey{Name: "ops", Hash: hash})

	got, err := store.GetAPIKey(ctx, hash)
	if err != nil {
		t.Fatalf("GetAPIKey() error: %v", err)
	}
	got.Name = "mutated"

	again, _ := store.GetAPIKey(ctx, hash)
	if again.Name != "ops" {
		t.Errorf("GetAPIKey() returned shared memory, name = %q", again.Name)
	}

	if _, err := store.GetAPIKey(ctx, "nope"); !errors.Is(err, auth.ErrKeyNotFound) {
		t.Errorf("GetAPIKey(nope) error = %v, want ErrKeyNotFound", err)
	}

	keys, _ := store.ListAPIKeys(ctx)
	if len(keys) != 1 || store.Len() != 1 {
		t.Errorf("ListAPIKeys() = %d keys, want 1", len(keys))
	}

	v := auth.NewValidator(store)
	id, err := v.Validate(ctx, "secret")
	if err != nil || id.Name != "ops" {
		t.Errorf("Validate() = %v, %v; want ops", id, err)
	}
}
