package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
)

var (
	// ErrInvalidKey is returned when an API key is unknown, expired or revoked.
	ErrInvalidKey = errors.New("invalid api key")

	// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
	ErrUnknownHashType = errors.New("unknown hash type")
)

// HashScheme names the algorithm a stored key hash uses.
type HashScheme string

const (
	SchemeArgon2id HashScheme = "argon2id"
	SchemeSHA256   HashScheme = "sha256"
	SchemeUnknown  HashScheme = "unknown"
)

const sha256Prefix = "sha256:"

// Validator checks raw API keys against a KeyStore.
type Validator struct {
	store KeyStore
	now   func() time.Time
}

// NewValidator creates a Validator over store.
func NewValidator(store KeyStore) *Validator {
	return &Validator{store: store, now: time.Now}
}

// Validate returns the identity for rawKey, or ErrInvalidKey.
// SHA-256 hashes are matched by direct lookup; Argon2id hashes by
// verifying against each stored key in turn.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*Identity, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}

	digest := HashKey(rawKey)
	for _, candidate := range []string{digest, sha256Prefix + digest} {
		if key, err := v.store.GetAPIKey(ctx, candidate); err == nil {
			return v.resolve(key)
		}
	}

	keys, err := v.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, ErrInvalidKey
	}
	for _, key := range keys {
		if DetectHashScheme(key.Hash) != SchemeArgon2id {
			continue
		}
		if ok, err := VerifyKey(rawKey, key.Hash); err == nil && ok {
			return v.resolve(key)
		}
	}
	return nil, ErrInvalidKey
}

func (v *Validator) resolve(key *APIKey) (*Identity, error) {
	if key.Revoked || key.IsExpired(v.now()) {
		return nil, ErrInvalidKey
	}
	return &Identity{Name: key.Name}, nil
}

// HashKey returns the SHA-256 hex digest of rawKey.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// argon2idParams follows the OWASP minimum for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns a salted Argon2id hash of rawKey in PHC format:
// $argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashScheme identifies the algorithm of a stored hash. Bare 64-char
// hex and "sha256:"-prefixed hex are both SHA-256.
func DetectHashScheme(stored string) HashScheme {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return SchemeArgon2id
	case strings.HasPrefix(stored, sha256Prefix):
		return SchemeSHA256
	case len(stored) == sha256.Size*2 && isHex(stored):
		return SchemeSHA256
	default:
		return SchemeUnknown
	}
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// VerifyKey reports whether rawKey matches stored. It never panics, even on
// malformed Argon2id parameters.
func VerifyKey(rawKey, stored string) (bool, error) {
	switch DetectHashScheme(stored) {
	case SchemeArgon2id:
		return compareArgon2id(rawKey, stored)
	case SchemeSHA256:
		want := strings.ToLower(strings.TrimPrefix(stored, sha256Prefix))
		return subtle.ConstantTimeCompare([]byte(HashKey(rawKey)), []byte(want)) == 1, nil
	default:
		return false, ErrUnknownHashType
	}
}

// compareArgon2id converts panics from the argon2 package on invalid
// parameters (t=0, p=0) into errors.
func compareArgon2id(rawKey, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, stored)
}
