package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/netcore-rdp/rdportal/internal/adapter/outbound/memory"
	"github.com/netcore-rdp/rdportal/internal/domain/session"
	"github.com/netcore-rdp/rdportal/internal/service"
)

func newServeTestTransport(t *testing.T, opts ...Option) *HTTPTransport {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := session.NewRegistry(memory.NewSessionStore())
	svc := service.NewConnectionService(registry, service.ConnectionConfig{}, logger)

	base := []Option{WithLogger(logger), WithRegistry(prometheus.NewRegistry())}
	return NewHTTPTransport(svc, append(base, opts...)...)
}

func TestHTTPTransport_ServeAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	transport := newServeTestTransport(t, WithVersion("serve-test"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- transport.Serve(ctx, ln) }()

	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	base := "http://" + ln.Addr().String()

	resp, err := client.Get(base + "/api/health")
	if err != nil {
		cancel()
		t.Fatalf("GET /api/health: %v", err)
	}
	var health HealthResponse
	err = json.NewDecoder(resp.Body).Decode(&health)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Version != "serve-test" {
		t.Errorf("health = %+v", health)
	}

	resp, err = client.Post(base+"/api/sessions/connect", "application/json", strings.NewReader(`{"ip":"10.1.1.1"}`))
	if err != nil {
		cancel()
		t.Fatalf("POST connect: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("connect status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	client.CloseIdleConnections()
}

func TestHTTPTransport_ServeReturnsListenerError(t *testing.T) {
	transport := newServeTestTransport(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_ = ln.Close()

	err = transport.Serve(context.Background(), ln)
	if err == nil {
		t.Fatal("Serve() on a closed listener returned nil")
	}
}

func TestHTTPTransport_StartInvalidAddr(t *testing.T) {
	transport := newServeTestTransport(t, WithAddr("256.0.0.1:99999"))
	if err := transport.Start(context.Background()); err == nil {
		t.Fatal("Start() with an invalid address returned nil")
	}
}

func TestHTTPTransport_CloseBeforeStart(t *testing.T) {
	transport := newServeTestTransport(t)
	if err := transport.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestHTTPTransport_OptionalRoutes(t *testing.T) {
	// Without a prober or history the probe and recent-ips routes fall
	// through to the JSON 404.
	handler := newServeTestTransport(t).Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/sessions/probe"},
		{http.MethodGet, "/api/sessions/recent-ips"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{"ip":"10.0.0.1"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tc.method, tc.path, rec.Code)
		}
	}
}

func TestHTTPTransport_CORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantCode   int
		wantOrigin string
	}{
		{name: "reflect any origin", origin: "https://portal.lab", method: http.MethodGet, wantCode: http.StatusOK, wantOrigin: "https://portal.lab"},
		{name: "preflight", origin: "https://portal.lab", method: http.MethodOptions, wantCode: http.StatusNoContent, wantOrigin: "https://portal.lab"},
		{name: "allowlisted", allowed: []string{"https://portal.lab"}, origin: "https://portal.lab", method: http.MethodGet, wantCode: http.StatusOK, wantOrigin: "https://portal.lab"},
		{name: "rejected", allowed: []string{"https://portal.lab"}, origin: "https://evil.example", method: http.MethodGet, wantCode: http.StatusForbidden},
		{name: "no origin", allowed: []string{"https://portal.lab"}, method: http.MethodGet, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newServeTestTransport(t, WithAllowedOrigins(tt.allowed)).Handler()

			req := httptest.NewRequest(tt.method, "/api/sessions/active", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}
