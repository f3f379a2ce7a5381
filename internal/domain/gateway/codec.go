package gateway

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrSerialization is returned when a payload cannot be marshaled to JSON.
	ErrSerialization = errors.New("gateway payload serialization failed")

	// ErrMalformedToken is returned when a token is not valid base64 or its
	// ciphertext or padding is malformed.
	ErrMalformedToken = errors.New("malformed gateway token")

	// ErrSignatureMismatch is returned when the embedded MAC does not match.
	ErrSignatureMismatch = errors.New("gateway token signature mismatch")
)

// macSize is the length of the HMAC-SHA256 tag that prefixes the payload.
const macSize = sha256.Size

// Codec encodes payloads with a fixed hex-encoded secret.
// The secret is parsed on every call so a misconfigured key fails each
// token attempt rather than the process.
type Codec struct {
	keyHex string
}

// NewCodec returns a Codec using the given hex-encoded secret.
func NewCodec(keyHex string) *Codec {
	return &Codec{keyHex: keyHex}
}

// Encode encodes p with the codec's secret.
func (c *Codec) Encode(p *Payload) (string, error) {
	return Encode(p, c.keyHex)
}

// Encode serializes payload to JSON and returns the gateway token for it.
// No output is produced when the key or the payload is invalid.
func Encode(payload any, keyHex string) (string, error) {
	key, err := ParseKey(keyHex)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	return EncodeBytes(data, key)
}

// EncodeBytes returns the token for an already-serialized payload.
// The bytes are signed and encrypted as given, never re-serialized.
func EncodeBytes(data []byte, key Key) (string, error) {
	mac := hmac.New(sha256.New, key[:])
	mac.Write(data)
	tag := mac.Sum(nil)

	plaintext := make([]byte, 0, len(tag)+len(data))
	plaintext = append(plaintext, tag...)
	plaintext = append(plaintext, data...)
	plaintext = pkcs7Pad(plaintext, aes.BlockSize)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	var iv [aes.BlockSize]byte
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, plaintext)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decode verifies a token and returns the serialized payload it carries.
// It performs the same checks as the gateway.
func Decode(token, keyHex string) ([]byte, error) {
	key, err := ParseKey(keyHex)
	if err != nil {
		return nil, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrMalformedToken, len(ciphertext))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	var iv [aes.BlockSize]byte
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	if len(plaintext) < macSize {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformedToken)
	}

	tag, data := plaintext[:macSize], plaintext[macSize:]
	mac := hmac.New(sha256.New, key[:])
	mac.Write(data)
	if !hmac.Equal(tag, mac.Sum(nil)) {
		return nil, ErrSignatureMismatch
	}

	return data, nil
}

// DecodePayload is Decode followed by JSON unmarshaling into a Payload.
func DecodePayload(token, keyHex string) (*Payload, error) {
	data, err := Decode(token, keyHex)
	if err != nil {
		return nil, err
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return &p, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad block alignment", ErrMalformedToken)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrMalformedToken)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrMalformedToken)
		}
	}
	return b[:len(b)-n], nil
}
