// Package gateway builds the signed and encrypted login tokens accepted by the
// Guacamole JSON auth extension.
//
// The wire format is fixed by the gateway:
//
//	base64( AES-128-CBC( key, IV=0, HMAC-SHA256(key, json) || json ) )
//
// The gateway decrypts the token, recomputes the MAC over the trailing JSON
// and rejects the login if either step fails. The zero IV and the tag-first
// layout are part of that contract and must not change.
package gateway

import (
	"strconv"
	"time"
)

// ProtocolRDP is the Guacamole protocol identifier for remote desktop.
const ProtocolRDP = "rdp"

// DefaultRDPPort is the remote-desktop service port passed to the gateway.
const DefaultRDPPort = 3389

// Payload is the JSON document carried inside a token.
type Payload struct {
	// Username is the gateway-side principal the login is issued for.
	Username string `json:"username"`
	// Expires is the absolute expiry as Unix milliseconds.
	Expires int64 `json:"expires"`
	// Connections maps a connection display name to its parameters.
	Connections map[string]Connection `json:"connections"`
}

// Connection is a single gateway connection definition.
type Connection struct {
	Protocol   string            `json:"protocol"`
	Parameters map[string]string `json:"parameters"`
}

// RDPTarget describes the machine a token grants access to.
type RDPTarget struct {
	Hostname string
	Port     int
	Username string
	Password string
}

// NewRDPPayload builds a payload with one RDP connection named connectionName.
// NLA is requested and certificate validation is disabled; credentials are
// only included when non-empty.
func NewRDPPayload(gatewayUser, connectionName string, target RDPTarget, expires time.Time) *Payload {
	port := target.Port
	if port == 0 {
		port = DefaultRDPPort
	}

	params := map[string]string{
		"hostname":     target.Hostname,
		"port":         strconv.Itoa(port),
		"ignore-cert":  "true",
		"security":     "nla",
		"disable-auth": "false",
	}
	if target.Username != "" {
		params["username"] = target.Username
	}
	if target.Password != "" {
		params["password"] = target.Password
	}

	return &Payload{
		Username: gatewayUser,
		Expires:  expires.UnixMilli(),
		Connections: map[string]Connection{
			connectionName: {
				Protocol:   ProtocolRDP,
				Parameters: params,
			},
		},
	}
}

// ConnectionName is the gateway connection key for a target: the caller's
// label, or "RDP <target>" when none was given.
func ConnectionName(label, target string) string {
	if label != "" {
		return label
	}
	return "RDP " + target
}
