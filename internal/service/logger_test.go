package service

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/netcore-rdp/rdportal/internal/ctxkey"
)

func TestContextLogger(t *testing.T) {
	t.Parallel()

	var fallbackBuf, requestBuf bytes.Buffer
	fallback := slog.New(slog.NewTextHandler(&fallbackBuf, nil))
	request := slog.New(slog.NewTextHandler(&requestBuf, nil)).With("request_id", "req-9")

	contextLogger(context.Background(), fallback).Info("plain")
	if !strings.Contains(fallbackBuf.String(), "plain") {
		t.Errorf("fallback logger not used: %q", fallbackBuf.String())
	}

	ctx := context.WithValue(context.Background(), ctxkey.LoggerKey{}, request)
	contextLogger(ctx, fallback).Info("enriched")
	if !strings.Contains(requestBuf.String(), "request_id=req-9") {
		t.Errorf("request logger not used: %q", requestBuf.String())
	}
	if strings.Contains(fallbackBuf.String(), "enriched") {
		t.Error("fallback logger used despite a request logger in context")
	}
}
