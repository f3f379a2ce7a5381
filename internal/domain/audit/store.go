package audit

import "context"

// Journal persists session events.
type Journal interface {
	// Append stores events in order.
	Append(ctx context.Context, events ...Event) error

	// Recent returns up to n events, newest first.
	Recent(n int) []Event

	// Flush forces buffered events to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}
