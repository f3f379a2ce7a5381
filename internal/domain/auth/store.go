package auth

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by stores when no key has the given hash.
var ErrKeyNotFound = errors.New("api key not found")

// KeyStore provides API key lookup.
// This interface is defined in the domain to avoid circular imports.
type KeyStore interface {
	// GetAPIKey retrieves a key by its exact stored hash.
	// Returns ErrKeyNotFound if none matches.
	GetAPIKey(ctx context.Context, hash string) (*APIKey, error)

	// ListAPIKeys returns all keys for iteration-based verification.
	ListAPIKeys(ctx context.Context) ([]*APIKey, error)
}
