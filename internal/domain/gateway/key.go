package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// KeySize is the length in bytes of the secret shared with the gateway.
const KeySize = 16

// Key is the AES-128 / HMAC key shared with the gateway's JSON auth extension.
type Key [KeySize]byte

// ErrInvalidKeyLength is returned when the configured secret is not 32 hex characters.
var ErrInvalidKeyLength = errors.New("gateway secret key must be 32 hex characters (128 bits)")

// ParseKey decodes a hex-encoded secret. Anything other than exactly 32 hex
// characters fails with ErrInvalidKeyLength.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != hex.EncodedLen(KeySize) {
		return k, fmt.Errorf("%w: got %d characters", ErrInvalidKeyLength, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	copy(k[:], b)
	return k, nil
}

// GenerateKey returns a new random secret, hex-encoded.
func GenerateKey() (string, error) {
	b := make([]byte, KeySize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate gateway key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
