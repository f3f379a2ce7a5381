// Package http provides the HTTP API of the remote-desktop portal.
//
// # Usage
//
// Create and start an HTTP transport:
//
//	transport := http.NewHTTPTransport(connectionService,
//	    http.WithAddr(":3001"),
//	    http.WithAllowedOrigins([]string{"https://portal.example"}),
//	    http.WithAPIKeyValidator(validator),
//	    http.WithLogger(logger),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	POST /api/sessions/connect               - Create a session, return client artifacts
//	GET  /api/sessions/active                - List live sessions with derived status
//	POST /api/sessions/disconnect/{id}       - Remove one session
//	POST /api/sessions/disconnect-all        - Remove every session
//	GET  /api/sessions/recent-ips            - Recently used targets (API key)
//	POST /api/sessions/recent-ips            - Record a target (API key)
//	GET  /api/sessions/events                - Recent session journal events (API key)
//	POST /api/sessions/probe                 - Check TCP reachability of port 3389
//	GET  /api/sessions/{id}/rdp              - Download the .rdp file of a session
//	GET  /api/health, /health                - Health check
//	GET  /metrics                            - Prometheus metrics
//
// # Middleware Chain
//
// Requests pass through middleware in this order:
//
//  1. MetricsMiddleware - Records duration and status
//  2. RequestIDMiddleware - Extracts or generates X-Request-ID, enriches the logger
//  3. RealIPMiddleware - Extracts the client IP from proxy headers
//  4. CORSMiddleware - Origin allowlist and preflight handling
//  5. APIKeyMiddleware - Resolves a Bearer API key to an identity when present
//  6. Routes - RequireIdentity guards the recent-ips and events routes; with WithRateLimit,
//     connect and probe are throttled per API key or client IP (429 + Retry-After)
//
// Passwords submitted to /connect are never logged; request logs carry the
// target and the remote username only.
package http
