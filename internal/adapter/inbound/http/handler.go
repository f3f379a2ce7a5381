package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/netcore-rdp/rdportal/internal/domain/audit"
	"github.com/netcore-rdp/rdportal/internal/domain/connection"
	"github.com/netcore-rdp/rdportal/internal/domain/session"
	"github.com/netcore-rdp/rdportal/internal/service"
)

// maxRequestBodySize is the maximum allowed request body size (64 KB).
const maxRequestBodySize = 64 << 10

// maxRecentLimit caps the ?limit= parameter of the recent-ips route.
const maxRecentLimit = 50

// Bounds of the ?limit= parameter of the events route.
const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// ConnectionService is what the session routes need from the service layer.
// service.ConnectionService satisfies it.
type ConnectionService interface {
	Connect(ctx context.Context, req service.ConnectRequest) (*service.ConnectResult, error)
	ActiveSessions(ctx context.Context) ([]session.View, error)
	Disconnect(ctx context.Context, id string) (*session.Session, error)
	DisconnectAll(ctx context.Context) (int, error)
	Descriptor(ctx context.Context, id string) (connection.Descriptor, error)
}

// RecentTargets records and lists recently used targets.
// service.HistoryService satisfies it.
type RecentTargets interface {
	Record(entry session.RecentTarget)
	Recent(ctx context.Context, owner string, n int) ([]string, error)
}

// EventLog lists recent session journal events, newest first.
// audit.Journal satisfies it.
type EventLog interface {
	Recent(n int) []audit.Event
}

// sessionsHandler serves the /api/sessions routes.
type sessionsHandler struct {
	connections ConnectionService
	prober      service.Prober
	history     RecentTargets
	events      EventLog
	resolver    *GatewayURLResolver
	metrics     *Metrics
	now         func() time.Time
}

// connectRequest is the JSON body of POST /api/sessions/connect.
type connectRequest struct {
	IP           string `json:"ip"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	UseGuacamole *bool  `json:"useGuacamole"`
}

// connectResponse is the JSON response of POST /api/sessions/connect.
type connectResponse struct {
	Success         bool   `json:"success"`
	SessionID       string `json:"sessionId"`
	IP              string `json:"ip"`
	Name            string `json:"name"`
	UseGuacamole    bool   `json:"useGuacamole"`
	GuacamoleURL    string `json:"guacamoleUrl,omitempty"`
	GuacamoleRdpURI string `json:"guacamoleRdpUri,omitempty"`
	RdpURI          string `json:"rdpUri,omitempty"`
	RdpFile         string `json:"rdpFile"`
	Reachable       *bool  `json:"reachable,omitempty"`
}

// activeResponse is the JSON response of GET /api/sessions/active.
type activeResponse struct {
	Success  bool           `json:"success"`
	Sessions []session.View `json:"sessions"`
	Count    int            `json:"count"`
	Error    string         `json:"error,omitempty"`
}

// targetRequest is the JSON body of the probe and recent-ips routes.
type targetRequest struct {
	IP string `json:"ip"`
}

// probeResponse is the JSON response of POST /api/sessions/probe.
type probeResponse struct {
	IP        string `json:"ip"`
	Reachable bool   `json:"reachable"`
}

// handleConnect creates a session.
// POST /api/sessions/connect
func (h *sessionsHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := LoggerFromContext(ctx)

	var req connectRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	preferGateway := req.UseGuacamole == nil || *req.UseGuacamole
	mode := "direct"
	if preferGateway {
		mode = "gateway"
	}

	if strings.TrimSpace(req.IP) == "" {
		h.metrics.ConnectsTotal.WithLabelValues(mode, "invalid").Inc()
		respondError(w, r, http.StatusBadRequest, "Target IP required")
		return
	}

	svcReq := service.ConnectRequest{
		TargetAddress: req.IP,
		Principal:     req.Username,
		Secret:        req.Password,
		DisplayName:   req.Name,
		PreferGateway: &preferGateway,
	}
	if preferGateway && h.resolver != nil {
		svcReq.GatewayBaseURL = h.resolver.Resolve(r)
	}
	if id := IdentityFromContext(ctx); id != nil {
		svcReq.Owner = id.Name
	}

	res, err := h.connections.Connect(ctx, svcReq)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingTarget):
			h.metrics.ConnectsTotal.WithLabelValues(mode, "invalid").Inc()
			respondError(w, r, http.StatusBadRequest, "Target IP required")
		case errors.Is(err, service.ErrTargetDenied):
			h.metrics.ConnectsTotal.WithLabelValues(mode, "denied").Inc()
			respondError(w, r, http.StatusForbidden, "Target not allowed")
		default:
			h.metrics.ConnectsTotal.WithLabelValues(mode, "error").Inc()
			logger.Error("connect failed", "target", req.IP, "error", err)
			respondError(w, r, http.StatusInternalServerError, "failed to create session")
		}
		return
	}

	sess := res.Session
	resp := connectResponse{
		Success:      true,
		SessionID:    sess.ID,
		IP:           sess.TargetAddress,
		Name:         sess.DisplayName,
		UseGuacamole: sess.UsesGateway,
		RdpFile:      res.Descriptor.String(),
		Reachable:    res.Reachable,
	}
	if sess.UsesGateway {
		resp.GuacamoleURL = res.GatewayURL
		resp.GuacamoleRdpURI = res.DirectURI
		outcome := "issued"
		if !res.TokenIssued {
			outcome = "fallback"
		}
		h.metrics.GatewayTokensTotal.WithLabelValues(outcome).Inc()
		mode = "gateway"
	} else {
		resp.RdpURI = res.DirectURI
		mode = "direct"
	}
	h.metrics.ConnectsTotal.WithLabelValues(mode, "ok").Inc()

	respondJSON(w, r, http.StatusOK, resp)
}

// handleActive lists live sessions.
// GET /api/sessions/active
func (h *sessionsHandler) handleActive(w http.ResponseWriter, r *http.Request) {
	views, err := h.connections.ActiveSessions(r.Context())
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to list sessions", "error", err)
		respondJSON(w, r, http.StatusInternalServerError, activeResponse{
			Success:  false,
			Sessions: []session.View{},
			Error:    "Failed to fetch active sessions",
		})
		return
	}
	if views == nil {
		views = []session.View{}
	}
	respondJSON(w, r, http.StatusOK, activeResponse{
		Success:  true,
		Sessions: views,
		Count:    len(views),
	})
}

// handleDisconnect removes one session.
// POST /api/sessions/disconnect/{sessionId}
func (h *sessionsHandler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if id == "" {
		respondJSON(w, r, http.StatusBadRequest, map[string]any{"success": false, "error": "Session ID is required"})
		return
	}

	removed, err := h.connections.Disconnect(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			respondJSON(w, r, http.StatusNotFound, map[string]any{"success": false, "error": "Session not found"})
			return
		}
		LoggerFromContext(r.Context()).Error("failed to disconnect session", "session_id", id, "error", err)
		respondJSON(w, r, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to disconnect session"})
		return
	}

	h.metrics.DisconnectsTotal.Inc()
	respondJSON(w, r, http.StatusOK, map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("Session %s disconnected", id),
		"sessionId": id,
		"ip":        removed.TargetAddress,
	})
}

// handleDisconnectAll removes every session.
// POST /api/sessions/disconnect-all
func (h *sessionsHandler) handleDisconnectAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.connections.DisconnectAll(r.Context())
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to disconnect all sessions", "error", err)
		respondJSON(w, r, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to disconnect all sessions"})
		return
	}

	h.metrics.DisconnectsTotal.Add(float64(n))
	respondJSON(w, r, http.StatusOK, map[string]any{
		"success":      true,
		"message":      fmt.Sprintf("All %d sessions disconnected", n),
		"count":        0,
		"disconnected": n,
	})
}

// handleRecentList returns the caller's recently used targets, newest first.
// GET /api/sessions/recent-ips[?limit=n]
func (h *sessionsHandler) handleRecentList(w http.ResponseWriter, r *http.Request) {
	limit := session.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentLimit {
			respondError(w, r, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxRecentLimit))
			return
		}
		limit = n
	}

	owner := IdentityFromContext(r.Context()).Name
	ips, err := h.history.Recent(r.Context(), owner, limit)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to list recent targets", "error", err)
		respondError(w, r, http.StatusInternalServerError, "failed to list recent targets")
		return
	}
	if ips == nil {
		ips = []string{}
	}
	respondJSON(w, r, http.StatusOK, ips)
}

// handleEvents returns recent session journal events, newest first.
// GET /api/sessions/events[?limit=n]
func (h *sessionsHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventsLimit {
			respondError(w, r, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxEventsLimit))
			return
		}
		limit = n
	}

	events := h.events.Recent(limit)
	if events == nil {
		events = []audit.Event{}
	}
	respondJSON(w, r, http.StatusOK, events)
}

// handleRecentRecord records a target for the caller.
// POST /api/sessions/recent-ips
func (h *sessionsHandler) handleRecentRecord(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		respondError(w, r, http.StatusBadRequest, "IP required")
		return
	}

	h.history.Record(session.RecentTarget{
		Owner:   IdentityFromContext(r.Context()).Name,
		Address: ip,
		UsedAt:  h.now().UTC(),
	})
	respondJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// handleProbe reports whether the target accepts remote-desktop connections.
// POST /api/sessions/probe
func (h *sessionsHandler) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		respondError(w, r, http.StatusBadRequest, "Target IP required")
		return
	}

	reachable := h.prober.Probe(r.Context(), ip)
	result := "unreachable"
	if reachable {
		result = "reachable"
	}
	h.metrics.ProbesTotal.WithLabelValues(result).Inc()

	respondJSON(w, r, http.StatusOK, probeResponse{IP: ip, Reachable: reachable})
}

// handleDescriptor serves the .rdp file of a stored session.
// GET /api/sessions/{sessionId}/rdp
func (h *sessionsHandler) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	d, err := h.connections.Descriptor(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			respondError(w, r, http.StatusNotFound, "Session not found")
			return
		}
		LoggerFromContext(r.Context()).Error("failed to load session", "session_id", id, "error", err)
		respondError(w, r, http.StatusInternalServerError, "failed to load session")
		return
	}

	w.Header().Set("Content-Type", connection.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, d.String())
}

// rootHandler describes the API.
// GET /
func rootHandler(version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]any{
			"message":   "NetCore RDP Backend API",
			"version":   version,
			"endpoints": []string{"/api/sessions", "/api/health", "/metrics"},
		})
	})
}

// notFoundHandler answers unknown routes with a JSON error.
func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "not found")
	})
}

// --- JSON helpers ---

// respondJSON writes a JSON response with the given status code and data.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		LoggerFromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]string{"error": message})
}

// readJSON decodes the request body into v. An empty body leaves v at its
// zero value, so missing fields are reported by the field checks instead.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
