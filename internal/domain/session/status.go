package session

import "time"

// Status is the lifecycle state of a session, derived from its age.
type Status string

const (
	StatusConnecting  Status = "connecting"
	StatusLoggedIn    Status = "logged_in"
	StatusEstablished Status = "established"
)

// Age thresholds. A session older than MaxAge is no longer listed.
const (
	ConnectingWindow = 30 * time.Second
	LoggedInWindow   = 5 * time.Minute
	MaxAge           = 4 * time.Hour
)

var statusMessages = map[Status]string{
	StatusConnecting:  "Connecting...",
	StatusLoggedIn:    "Logged In",
	StatusEstablished: "Established",
}

// Message returns the human-readable label for the status.
func (s Status) Message() string {
	return statusMessages[s]
}

// DeriveStatus maps a session age to its status. ok is false once the
// session has aged out and must be excluded from listings.
// Negative ages, from clock skew, count as zero.
func DeriveStatus(age time.Duration) (status Status, ok bool) {
	switch {
	case age < ConnectingWindow:
		return StatusConnecting, true
	case age < LoggedInWindow:
		return StatusLoggedIn, true
	case age < MaxAge:
		return StatusEstablished, true
	default:
		return "", false
	}
}
