// Package connection renders the client-side artifacts for a remote-desktop
// target: the native client's .rdp file and the rdp:// URI.
package connection

import (
	"net/url"
	"strings"
)

// ContentType is the media type of a .rdp file.
const ContentType = "application/x-rdp"

// Descriptor is the native-client connection file for a target. The client
// always prompts for credentials and skips server authentication checks.
type Descriptor struct {
	Address  string
	Username string
}

// Lines returns the descriptor settings in file order.
func (d Descriptor) Lines() []string {
	return []string{
		"full address:s:" + d.Address,
		"username:s:" + d.Username,
		"prompt for credentials:i:1",
		"authentication level:i:0",
	}
}

// String renders the descriptor as CRLF-separated lines.
func (d Descriptor) String() string {
	return strings.Join(d.Lines(), "\r\n")
}

// Filename is the suggested download name for the descriptor.
func (d Descriptor) Filename() string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, d.Address)
	if name == "" {
		name = "connection"
	}
	return name + ".rdp"
}

// DirectURI returns the rdp:// URI for address. Credentials are embedded
// percent-encoded when a username is given; the password may be empty.
func DirectURI(address, username, password string) string {
	var b strings.Builder
	b.WriteString("rdp://")
	if username != "" {
		b.WriteString(escapeComponent(username))
		b.WriteByte(':')
		b.WriteString(escapeComponent(password))
		b.WriteByte('@')
	}
	b.WriteString(address)
	b.WriteString("/?ignore-cert=true")
	return b.String()
}

// escapeComponent percent-encodes s for use inside a URI component.
// Spaces become %20 rather than '+'.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
