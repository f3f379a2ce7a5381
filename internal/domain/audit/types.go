// Package audit contains the session journal types: one event per connect,
// denial and disconnect.
package audit

import "time"

// Kind identifies what happened to a session.
type Kind string

const (
	// KindConnect is a session created by a successful connect.
	KindConnect Kind = "connect"
	// KindDenied is a connect rejected by the target policy.
	KindDenied Kind = "denied"
	// KindDisconnect is a single session removed through the API.
	KindDisconnect Kind = "disconnect"
	// KindDisconnectAll is a bulk removal; Count holds how many went.
	KindDisconnectAll Kind = "disconnect_all"
)

// Event is one journal line. It never carries the remote password or the
// gateway URL, which embeds an encrypted copy of it.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Target    string    `json:"target,omitempty"`
	// Principal is the remote login name as supplied.
	Principal string `json:"principal,omitempty"`
	// Owner is the API key name of the caller, empty for anonymous calls.
	Owner string `json:"owner,omitempty"`
	// Mode is "gateway" or "direct".
	Mode string `json:"mode,omitempty"`
	// Rule names the target rule that denied the connect.
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`
	Count  int    `json:"count,omitempty"`
}
