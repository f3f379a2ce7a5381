package gateway

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

const testKeyHex = "4c0b569e4c96df157eee1b65dd0e4d41"

// decryptIndependently reverses the wire format using only the standard
// library, without going through Decode.
func decryptIndependently(t *testing.T, token, keyHex string) []byte {
	t.Helper()

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	ct, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not base64: %v", err)
	}
	if len(ct)%aes.BlockSize != 0 {
		t.Fatalf("ciphertext length %d not a multiple of %d", len(ct), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(pt, ct)

	pad := int(pt[len(pt)-1])
	if pad < 1 || pad > aes.BlockSize {
		t.Fatalf("invalid padding byte %d", pad)
	}
	return pt[:len(pt)-pad]
}

func TestEncodeBytes_WireLayout(t *testing.T) {
	t.Parallel()

	key, err := ParseKey(testKeyHex)
	if err != nil {
		t.Fatalf("ParseKey() error = %v", err)
	}
	data := []byte(`{"username":"guest","expires":1700000000000,"connections":{}}`)

	token, err := EncodeBytes(data, key)
	if err != nil {
		t.Fatalf("EncodeBytes() error = %v", err)
	}

	plaintext := decryptIndependently(t, token, testKeyHex)
	if len(plaintext) != sha256.Size+len(data) {
		t.Fatalf("plaintext len = %d, want %d", len(plaintext), sha256.Size+len(data))
	}

	mac := hmac.New(sha256.New, key[:])
	mac.Write(data)
	if !hmac.Equal(plaintext[:sha256.Size], mac.Sum(nil)) {
		t.Error("leading 32 bytes are not HMAC-SHA256(key, payload)")
	}
	if string(plaintext[sha256.Size:]) != string(data) {
		t.Errorf("trailing bytes = %q, want %q", plaintext[sha256.Size:], data)
	}
}

func TestEncodeBytes_Deterministic(t *testing.T) {
	t.Parallel()

	key, _ := ParseKey(testKeyHex)
	data := []byte(`{"a":1}`)

	first, err := EncodeBytes(data, key)
	if err != nil {
		t.Fatalf("EncodeBytes() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := EncodeBytes(data, key)
		if err != nil {
			t.Fatalf("EncodeBytes() error = %v", err)
		}
		if next != first {
			t.Fatalf("EncodeBytes() not deterministic: %q != %q", next, first)
		}
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	expires := time.UnixMilli(1_700_000_000_000)
	p := NewRDPPayload("guest", "RDP 10.0.0.5", RDPTarget{
		Hostname: "10.0.0.5",
		Username: "alice",
		Password: "s3cr3t",
	}, expires)

	token, err := Encode(p, testKeyHex)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want, _ := json.Marshal(p)
	got, err := Decode(token, testKeyHex)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Decode() = %s, want %s", got, want)
	}

	decoded, err := DecodePayload(token, testKeyHex)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if decoded.Expires != expires.UnixMilli() {
		t.Errorf("Expires = %d, want %d", decoded.Expires, expires.UnixMilli())
	}
	conn, ok := decoded.Connections["RDP 10.0.0.5"]
	if !ok {
		t.Fatalf("connection %q missing: %+v", "RDP 10.0.0.5", decoded.Connections)
	}
	if conn.Parameters["password"] != "s3cr3t" {
		t.Errorf("password parameter = %q, want %q", conn.Parameters["password"], "s3cr3t")
	}
}

func TestEncode_InvalidKeyLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "too short", key: "4c0b569e4c96df15"},
		{name: "one char short", key: testKeyHex[:31]},
		{name: "one char long", key: testKeyHex + "0"},
		{name: "256-bit key", key: testKeyHex + testKeyHex},
		{name: "non-hex", key: strings.Repeat("zz", 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := Encode(&Payload{Username: "guest"}, tt.key)
			if !errors.Is(err, ErrInvalidKeyLength) {
				t.Errorf("Encode() error = %v, want ErrInvalidKeyLength", err)
			}
			if token != "" {
				t.Errorf("Encode() token = %q, want empty output", token)
			}
		})
	}
}

func TestEncode_SerializationError(t *testing.T) {
	t.Parallel()

	token, err := Encode(map[string]any{"bad": make(chan int)}, testKeyHex)
	if !errors.Is(err, ErrSerialization) {
		t.Errorf("Encode() error = %v, want ErrSerialization", err)
	}
	if token != "" {
		t.Errorf("Encode() token = %q, want empty output", token)
	}
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	token, err := Encode(&Payload{Username: "guest"}, testKeyHex)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(token)
	// Flipping a bit in the first block corrupts the MAC but keeps the padding valid.
	raw[0] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		token   string
		key     string
		wantErr error
	}{
		{name: "not base64", token: "!!!", key: testKeyHex, wantErr: ErrMalformedToken},
		{name: "short ciphertext", token: base64.StdEncoding.EncodeToString([]byte("abc")), key: testKeyHex, wantErr: ErrMalformedToken},
		{name: "tampered", token: tampered, key: testKeyHex, wantErr: ErrSignatureMismatch},
		{name: "bad key", token: token, key: "abcd", wantErr: ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.token, tt.key); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_WrongKey(t *testing.T) {
	t.Parallel()

	token, err := Encode(&Payload{Username: "guest"}, testKeyHex)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	other := strings.Repeat("ab", 16)
	if _, err := Decode(token, other); err == nil {
		t.Error("Decode() with a different key succeeded, want error")
	}
}

func TestCodec_Encode(t *testing.T) {
	t.Parallel()

	c := NewCodec(testKeyHex)
	token, err := c.Encode(&Payload{Username: "guest", Connections: map[string]Connection{}})
	if err != nil {
		t.Fatalf("Codec.Encode() error = %v", err)
	}
	if _, err := Decode(token, testKeyHex); err != nil {
		t.Errorf("Decode() error = %v", err)
	}

	if _, err := NewCodec("short").Encode(&Payload{}); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("Codec.Encode() with bad key error = %v, want ErrInvalidKeyLength", err)
	}
}
