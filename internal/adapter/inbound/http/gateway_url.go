package http

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// Gateway URL defaults, matching a stock Guacamole deployment.
const (
	DefaultGatewayScheme = "http"
	DefaultGatewayPort   = 8080
	DefaultGatewayPath   = "/guacamole"
)

// GatewayURLConfig pins parts of the gateway base URL. Zero values fall
// back to the defaults; an empty Host means "derive from the request".
type GatewayURLConfig struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// GatewayURLResolver derives the gateway base URL a browser should use.
// The gateway runs next to the portal, so the host the browser used to
// reach the portal is the best guess for the gateway host.
type GatewayURLResolver struct {
	scheme string
	host   string
	port   int
	path   string
	logger *slog.Logger
}

// NewGatewayURLResolver creates a resolver from cfg.
func NewGatewayURLResolver(cfg GatewayURLConfig, logger *slog.Logger) *GatewayURLResolver {
	g := &GatewayURLResolver{
		scheme: cfg.Scheme,
		host:   cfg.Host,
		port:   cfg.Port,
		path:   cfg.Path,
		logger: logger,
	}
	if g.scheme == "" {
		g.scheme = DefaultGatewayScheme
	}
	if g.port <= 0 {
		g.port = DefaultGatewayPort
	}
	if g.path == "" {
		g.path = DefaultGatewayPath
	}
	if !strings.HasPrefix(g.path, "/") {
		g.path = "/" + g.path
	}
	g.path = strings.TrimRight(g.path, "/")
	return g
}

// Resolve returns <scheme>://<host>:<port><path> for r. The host is the
// configured one, else the request's Host (port stripped), else
// X-Forwarded-Host, X-Real-IP or the first X-Forwarded-For entry. A
// loopback or missing host becomes "localhost" with a warning.
func (g *GatewayURLResolver) Resolve(r *http.Request) string {
	host := g.host
	if host == "" {
		host = requestHost(r)
		if isLoopbackHost(host) {
			LoggerFromContext(r.Context()).Warn("could not determine server address from request headers, using localhost",
				"host_header", r.Host,
			)
			host = "localhost"
		}
	}

	base := g.scheme + "://" + net.JoinHostPort(host, strconv.Itoa(g.port)) + g.path
	g.logger.Debug("resolved gateway base url", "url", base)
	return base
}

func requestHost(r *http.Request) string {
	if h := stripPort(r.Host); h != "" {
		return h
	}
	if h := stripPort(r.Header.Get("X-Forwarded-Host")); h != "" {
		return h
	}
	if h := strings.TrimSpace(r.Header.Get("X-Real-IP")); h != "" {
		return h
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return ""
}

func stripPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
}

func isLoopbackHost(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") || strings.HasPrefix(host, "127.") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
