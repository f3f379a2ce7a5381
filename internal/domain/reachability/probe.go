// Package reachability answers whether a remote-desktop port accepts TCP
// connections within a bounded time.
package reachability

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is the remote-desktop service port.
	DefaultPort = 3389

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 2000 * time.Millisecond
)

// Prober performs TCP handshake probes. It holds only configuration and is
// safe for concurrent use.
type Prober struct {
	port    int
	timeout time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithPort sets the port every probe dials.
func WithPort(port int) Option {
	return func(p *Prober) {
		if port > 0 {
			p.port = port
		}
	}
}

// WithTimeout sets the timeout used by Probe.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewProber returns a Prober for port 3389 with a 2s timeout unless
// overridden by opts.
func NewProber(opts ...Option) *Prober {
	p := &Prober{port: DefaultPort, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Timeout returns the timeout used by Probe.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// Probe reports whether address accepts a TCP connection within the
// prober's timeout.
func (p *Prober) Probe(ctx context.Context, address string) bool {
	return p.ProbeTimeout(ctx, address, p.timeout)
}

// ProbeTimeout reports whether address accepts a TCP connection within
// timeout. Any failure, including a cancelled context, yields false.
// Only the prober's port is dialed; a port in address is ignored.
func (p *Prober) ProbeTimeout(ctx context.Context, address string, timeout time.Duration) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.dialAddr(address))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// dialAddr pins address to the prober's port, dropping any port the
// caller supplied so the probe cannot be pointed at other services.
func (p *Prober) dialAddr(address string) string {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(p.port))
}
