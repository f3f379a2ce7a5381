package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netcore-rdp/rdportal/internal/domain/ratelimit"
	"github.com/netcore-rdp/rdportal/internal/service"
)

// HTTPTransport is the inbound adapter exposing the portal API over HTTP.
type HTTPTransport struct {
	connections    ConnectionService
	prober         service.Prober
	history        RecentTargets
	events         EventLog
	validator      KeyValidator
	resolver       *GatewayURLResolver
	healthChecker  *HealthChecker
	server         *http.Server
	addr           string
	allowedOrigins []string
	certFile       string
	keyFile        string
	version        string
	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *Metrics
	limiter        ratelimit.Limiter
	limit          ratelimit.Limit
	now            func() time.Time
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:3001" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithAllowedOrigins sets the CORS origin allowlist.
// If empty, any Origin is reflected.
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) {
		t.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithHealthChecker sets the health checker for the health endpoints.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithProber sets the prober behind POST /api/sessions/probe.
func WithProber(p service.Prober) Option {
	return func(t *HTTPTransport) {
		t.prober = p
	}
}

// WithRecentTargets sets the history behind the recent-ips routes.
func WithRecentTargets(h RecentTargets) Option {
	return func(t *HTTPTransport) {
		t.history = h
	}
}

// WithEventLog exposes the session journal at GET /api/sessions/events.
func WithEventLog(events EventLog) Option {
	return func(t *HTTPTransport) {
		t.events = events
	}
}

// WithAPIKeyValidator enables Bearer API keys. Without it the recent-ips
// routes always answer 401.
func WithAPIKeyValidator(v KeyValidator) Option {
	return func(t *HTTPTransport) {
		t.validator = v
	}
}

// WithGatewayURLResolver sets how gateway base URLs are derived.
func WithGatewayURLResolver(r *GatewayURLResolver) Option {
	return func(t *HTTPTransport) {
		t.resolver = r
	}
}

// WithVersion sets the version reported by / and the health endpoints.
func WithVersion(version string) Option {
	return func(t *HTTPTransport) {
		t.version = version
	}
}

// WithRegistry sets the Prometheus registry. A fresh registry with Go and
// process collectors is used otherwise.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(t *HTTPTransport) {
		t.registry = reg
	}
}

// WithRateLimit throttles the connect and probe routes per caller.
func WithRateLimit(limiter ratelimit.Limiter, limit ratelimit.Limit) Option {
	return func(t *HTTPTransport) {
		t.limiter = limiter
		t.limit = limit
	}
}

// WithClock sets the time source used to stamp recorded targets.
func WithClock(now func() time.Time) Option {
	return func(t *HTTPTransport) {
		t.now = now
	}
}

// NewHTTPTransport creates an HTTP transport serving the given connection service.
func NewHTTPTransport(connections ConnectionService, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		connections:    connections,
		addr:           "127.0.0.1:3001",
		allowedOrigins: []string{},
		logger:         slog.Default(),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.resolver == nil {
		t.resolver = NewGatewayURLResolver(GatewayURLConfig{}, t.logger)
	}
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
		t.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	t.metrics = NewMetrics(t.registry)
	if counter, ok := connections.(SessionCounter); ok {
		RegisterSessionGauge(t.registry, counter)
	}

	return t
}

// Metrics returns the transport's Prometheus metrics.
func (t *HTTPTransport) Metrics() *Metrics {
	return t.metrics
}

// Handler builds the routed, middleware-wrapped handler.
func (t *HTTPTransport) Handler() http.Handler {
	h := &sessionsHandler{
		connections: t.connections,
		prober:      t.prober,
		history:     t.history,
		events:      t.events,
		resolver:    t.resolver,
		metrics:     t.metrics,
		now:         t.now,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/sessions/connect", t.throttle("/api/sessions/connect", h.handleConnect))
	mux.HandleFunc("GET /api/sessions/active", h.handleActive)
	mux.HandleFunc("POST /api/sessions/disconnect/{sessionId}", h.handleDisconnect)
	mux.HandleFunc("POST /api/sessions/disconnect-all", h.handleDisconnectAll)
	mux.HandleFunc("GET /api/sessions/{sessionId}/rdp", h.handleDescriptor)
	if t.prober != nil {
		mux.Handle("POST /api/sessions/probe", t.throttle("/api/sessions/probe", h.handleProbe))
	}
	if t.history != nil {
		mux.Handle("GET /api/sessions/recent-ips", RequireIdentity(http.HandlerFunc(h.handleRecentList)))
		mux.Handle("POST /api/sessions/recent-ips", RequireIdentity(http.HandlerFunc(h.handleRecentRecord)))
	}

	if t.events != nil {
		mux.Handle("GET /api/sessions/events", RequireIdentity(http.HandlerFunc(h.handleEvents)))
	}

	health := t.healthChecker
	if health == nil {
		health = NewHealthChecker(nil, nil, t.version)
	}
	mux.Handle("GET /api/health", health.Handler())
	mux.Handle("GET /health", health.Handler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	// Favicon handler to prevent browser 404 noise
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.Handle("GET /{$}", rootHandler(t.version))
	mux.Handle("/", notFoundHandler())

	// Middleware order (outermost first):
	// 1. MetricsMiddleware - Record duration and status (MUST be outermost to capture full duration)
	// 2. RequestID - Extract/generate request ID and enrich logger
	// 3. RealIP - Extract client IP from X-Forwarded-For
	// 4. CORS - Origin allowlist and preflight
	// 5. APIKey - Resolve Bearer key to identity
	var handler http.Handler = mux
	handler = APIKeyMiddleware(t.validator)(handler)
	handler = CORSMiddleware(t.allowedOrigins)(handler)
	handler = RealIPMiddleware(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)
	return handler
}

// throttle wraps fn in the rate limiter when one is configured.
func (t *HTTPTransport) throttle(route string, fn http.HandlerFunc) http.Handler {
	if t.limiter == nil {
		return fn
	}
	return RateLimitMiddleware(t.limiter, t.limit, t.metrics, route)(fn)
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	return t.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or the server fails.
func (t *HTTPTransport) Serve(ctx context.Context, ln net.Listener) error {
	t.server = &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)

	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", ln.Addr().String())
			err = t.server.ServeTLS(ln, t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", ln.Addr().String())
			err = t.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
