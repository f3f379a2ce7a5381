package http

import (
	"net/http"
	"strings"
	"time"
)

// MetricsMiddleware records request_duration_seconds by method and route,
// and requests_total by method, route and status class. Scrape and health
// requests are not counted.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/metrics", "/health", "/api/health":
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := routeLabel(r.URL.Path)
			metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(r.Method, route, statusToLabel(wrapped.status)).Inc()
		})
	}
}

// routeLabel collapses a request path onto its route template so session
// IDs never become label values.
func routeLabel(path string) string {
	const prefix = "/api/sessions/"
	if !strings.HasPrefix(path, prefix) {
		if path == "/" {
			return "/"
		}
		return "other"
	}
	rest := strings.TrimPrefix(path, prefix)
	switch {
	case rest == "connect", rest == "active", rest == "probe",
		rest == "disconnect-all", rest == "recent-ips", rest == "events":
		return path
	case strings.HasPrefix(rest, "disconnect/"):
		return prefix + "disconnect/{id}"
	case strings.HasSuffix(rest, "/rdp") && strings.Count(rest, "/") == 1:
		return prefix + "{id}/rdp"
	default:
		return "other"
	}
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// statusToLabel buckets a status code into ok, client_error or server_error.
func statusToLabel(code int) string {
	switch {
	case code >= 500:
		return "server_error"
	case code >= 400:
		return "client_error"
	default:
		return "ok"
	}
}
