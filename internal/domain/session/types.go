// Package session tracks the remote-desktop sessions handed out by the portal
// and derives their lifecycle state from age.
package session

import (
	"time"

	"github.com/google/uuid"
)

// IDPrefix prefixes every generated session identifier.
const IDPrefix = "sess-"

// Session is an issued remote-desktop connection. Records are never mutated
// after insertion; they only leave the registry through removal.
type Session struct {
	// ID is the opaque session identifier.
	ID string
	// TargetAddress is the IPv4 address or hostname of the remote machine.
	TargetAddress string
	// DisplayName is the human-readable label shown in listings.
	DisplayName string
	// Principal is the remote login name as supplied. May be empty.
	Principal string
	// CreatedAt is the creation time (UTC).
	CreatedAt time.Time
	// GatewayURL is the pre-authenticated gateway URL, nil when the session
	// does not use the gateway.
	GatewayURL *string
	// UsesGateway records whether the gateway path was chosen at creation.
	UsesGateway bool
}

// NewID returns a fresh session identifier.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// DefaultDisplayName is the label used when the caller supplies none.
func DefaultDisplayName(target string) string {
	return "Direct: " + target
}

// Clone returns a copy that shares no memory with s.
func (s *Session) Clone() *Session {
	c := *s
	if s.GatewayURL != nil {
		u := *s.GatewayURL
		c.GatewayURL = &u
	}
	return &c
}

// View is a session as presented to API callers, with its derived status.
type View struct {
	SessionID     string    `json:"sessionId"`
	IP            string    `json:"ip"`
	Name          string    `json:"name"`
	Username      string    `json:"username"`
	CreatedAt     time.Time `json:"createdAt"`
	GuacamoleURL  *string   `json:"guacamoleUrl"`
	UseGuacamole  bool      `json:"useGuacamole"`
	Status        Status    `json:"status"`
	StatusMessage string    `json:"statusMessage"`
	AgeSeconds    int64     `json:"ageSeconds"`
}
