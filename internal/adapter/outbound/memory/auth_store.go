package memory

import (
	"context"
	"sync"

	"github.com/netcore-rdp/rdportal/internal/domain/auth"
)

// KeyStore implements auth.KeyStore with an in-memory map keyed by hash.
// It is seeded from configuration at startup.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]*auth.APIKey
}

// NewKeyStore creates a store holding keys.
func NewKeyStore(keys ...*auth.APIKey) *KeyStore {
	s := &KeyStore{keys: make(map[string]*auth.APIKey, len(keys))}
	for _, k := range keys {
		s.AddKey(k)
	}
	return s
}

// GetAPIKey retrieves a key by its stored hash.
func (s *KeyStore) GetAPIKey(_ context.Context, hash string) (*auth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	keyCopy := *key
	return &keyCopy, nil
}

// ListAPIKeys returns copies of all keys.
func (s *KeyStore) ListAPIKeys(_ context.Context) ([]*auth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*auth.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		keyCopy := *key
		result = append(result, &keyCopy)
	}
	return result, nil
}

// AddKey adds or replaces a key.
func (s *KeyStore) AddKey(key *auth.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyCopy := *key
	s.keys[key.Hash] = &keyCopy
}

// Len returns the number of configured keys.
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Compile-time interface verification.
var _ auth.KeyStore = (*KeyStore)(nil)
