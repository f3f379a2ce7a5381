package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// HealthResponse is the JSON response from the health endpoints.
type HealthResponse struct {
	Status    string            `json:"status"` // "ok" or "unhealthy"
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Version   string            `json:"version,omitempty"`
}

// HistoryMonitor exposes the backlog of the recent-target recorder.
type HistoryMonitor interface {
	ChannelDepth() int
	ChannelCapacity() int
	DroppedEntries() int64
}

// HealthChecker verifies component health.
type HealthChecker struct {
	sessions SessionCounter
	history  HistoryMonitor
	version  string
	now      func() time.Time
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(sessions SessionCounter, history HistoryMonitor, version string) *HealthChecker {
	return &HealthChecker{
		sessions: sessions,
		history:  history,
		version:  version,
		now:      time.Now,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.sessions != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		n, err := h.sessions.SessionCount(ctx)
		cancel()
		if err != nil {
			checks["session_store"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["session_store"] = fmt.Sprintf("ok: %d sessions", n)
		}
	} else {
		checks["session_store"] = "not configured"
	}

	if h.history != nil {
		depth := h.history.ChannelDepth()
		capacity := h.history.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		if percentFull > 90 {
			// The recorder is falling behind; new entries are being dropped.
			checks["history"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["history"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}

		if drops := h.history.DroppedEntries(); drops > 0 {
			checks["history_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["history"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "ok"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:    status,
		Timestamp: h.now().UTC(),
		Checks:    checks,
		Version:   h.version,
	}
}

// Handler returns an HTTP handler for the health endpoints.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
