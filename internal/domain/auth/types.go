// Package auth verifies the API keys that protect the portal's history
// endpoints.
package auth

import "time"

// Identity is the caller an API key resolves to.
type Identity struct {
	// Name is the key's configured label. It scopes the recent-target
	// history.
	Name string
}

// APIKey is a configured key. Only its hash is ever stored.
type APIKey struct {
	// Name is a human-readable label for this key.
	Name string
	// Hash is the Argon2id PHC string or SHA-256 hex of the raw key.
	Hash string
	// ExpiresAt is when the key expires (nil = never expires).
	ExpiresAt *time.Time
	// Revoked disables the key without removing it.
	Revoked bool
}

// IsExpired returns true if the API key has expired.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
