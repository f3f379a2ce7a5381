// Package state persists portal sessions and the recent-target history in
// a single state.json file.
//
// Writes are atomic (temp file, fsync, rename), guarded by an in-process
// mutex plus an flock on state.json.lock so a second portal process on the
// same file never interleaves with this one.
package state

import "time"

// SchemaVersion is written to every state file.
const SchemaVersion = "1"

// AppState is the top-level structure persisted in state.json.
type AppState struct {
	// Version is the schema version for forward compatibility.
	Version string `json:"version"`

	// Sessions maps session id to its record.
	Sessions map[string]SessionEntry `json:"sessions"`

	// RecentIPs is the connect history, oldest first.
	RecentIPs []RecentIPEntry `json:"recent_ips"`

	// CreatedAt is when this state file was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this state file was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionEntry is one persisted session.
type SessionEntry struct {
	SessionID   string    `json:"session_id"`
	IP          string    `json:"ip"`
	Username    string    `json:"username"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	GatewayURL  *string   `json:"guacamole_url"`
	UsesGateway bool      `json:"use_guacamole"`
}

// RecentIPEntry is one entry of the connect history.
type RecentIPEntry struct {
	// UserID is the API key name that recorded the entry, empty for
	// anonymous connects.
	UserID string    `json:"user_id,omitempty"`
	IP     string    `json:"ip"`
	UsedAt time.Time `json:"used_at"`
}
