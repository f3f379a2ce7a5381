package service

import (
	"context"
	"log/slog"

	"github.com/netcore-rdp/rdportal/internal/ctxkey"
)

// loggerFromContext retrieves the enriched logger from context.
// Uses the same key as HTTP middleware for request_id/client_ip enrichment.
// Returns nil if no logger is in context, allowing caller to fall back.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return nil
}

// contextLogger returns the request logger when there is one, else fallback.
func contextLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger := loggerFromContext(ctx); logger != nil {
		return logger
	}
	return fallback
}
