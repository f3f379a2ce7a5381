// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// The HTTP middleware stores a logger carrying request_id and client_ip;
// services read it back so their log lines share those fields.
type LoggerKey struct{}
