package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/netcore-rdp/rdportal/internal/domain/audit"
	"github.com/netcore-rdp/rdportal/internal/domain/connection"
	"github.com/netcore-rdp/rdportal/internal/domain/gateway"
	"github.com/netcore-rdp/rdportal/internal/domain/policy"
	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

var (
	// ErrMissingTarget is returned when a connect request has no target address.
	ErrMissingTarget = errors.New("target address required")

	// ErrTargetDenied is returned when the target policy rejects a connect request.
	ErrTargetDenied = errors.New("target denied by policy")
)

// Defaults applied by NewConnectionService when the config leaves them unset.
const (
	DefaultGatewayUser    = "guest"
	DefaultTokenTTL       = time.Hour
	DefaultGatewayBaseURL = "http://localhost:8080/guacamole"
)

// ConnectionConfig holds the settings that shape every connect.
type ConnectionConfig struct {
	// GatewayEnabled allows the gateway path. When false every session is direct.
	GatewayEnabled bool
	// SecretKey is the 32-hex-character gateway token secret.
	SecretKey string
	// GatewayUser is the gateway-side username carried in tokens.
	GatewayUser string
	// TokenTTL is how long an issued token stays valid.
	TokenTTL time.Duration
	// DefaultGatewayBaseURL is used when a request carries no base URL.
	DefaultGatewayBaseURL string
	// Preflight probes the target before registering the session.
	Preflight bool
}

// ConnectRequest is one caller's request to connect to a target.
type ConnectRequest struct {
	TargetAddress string
	Principal     string
	// Secret is the remote login password. It is only ever placed inside
	// the encrypted token and the direct URI; never logged or stored.
	Secret      string
	DisplayName string
	// PreferGateway selects the gateway path; nil means true.
	PreferGateway *bool
	// GatewayBaseURL overrides the configured gateway base URL.
	GatewayBaseURL string
	// Owner is the authenticated caller, used to scope recent targets.
	Owner string
}

// ConnectResult is everything a caller needs to open the connection.
type ConnectResult struct {
	Session    *session.Session
	Descriptor connection.Descriptor
	DirectURI  string
	// GatewayURL is empty for direct sessions.
	GatewayURL string
	// TokenIssued is false when the gateway URL fell back to manual login.
	TokenIssued bool
	// Reachable is set only when a pre-flight probe ran.
	Reachable *bool
}

// HistoryRecorder receives the targets of successful connects.
// HistoryService satisfies it.
type HistoryRecorder interface {
	Record(entry session.RecentTarget)
}

// EventRecorder receives session journal events. audit.Journal satisfies it.
type EventRecorder interface {
	Append(ctx context.Context, events ...audit.Event) error
}

// ConnectionService turns connect requests into registered sessions with
// their client artifacts. It holds no per-request state.
type ConnectionService struct {
	registry *session.Registry
	codec    *gateway.Codec
	cfg      ConnectionConfig
	policy   policy.Engine
	prober   Prober
	history  HistoryRecorder
	journal  EventRecorder
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	inst     *instruments
}

// ConnectionOption configures ConnectionService.
type ConnectionOption func(*ConnectionService)

// WithTargetPolicy installs the policy consulted before each connect.
func WithTargetPolicy(engine policy.Engine) ConnectionOption {
	return func(s *ConnectionService) {
		if engine != nil {
			s.policy = engine
		}
	}
}

// WithPreflightProber sets the prober used when pre-flight checks are on.
func WithPreflightProber(p Prober) ConnectionOption {
	return func(s *ConnectionService) {
		s.prober = p
	}
}

// WithHistory sets where connected targets are recorded.
func WithHistory(h HistoryRecorder) ConnectionOption {
	return func(s *ConnectionService) {
		s.history = h
	}
}

// WithJournal sets where session events are recorded.
func WithJournal(j EventRecorder) ConnectionOption {
	return func(s *ConnectionService) {
		s.journal = j
	}
}

// WithConnectionClock overrides the time source.
func WithConnectionClock(now func() time.Time) ConnectionOption {
	return func(s *ConnectionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(newID func() string) ConnectionOption {
	return func(s *ConnectionService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewConnectionService creates a ConnectionService registering sessions in registry.
func NewConnectionService(registry *session.Registry, cfg ConnectionConfig, logger *slog.Logger, opts ...ConnectionOption) *ConnectionService {
	if cfg.GatewayUser == "" {
		cfg.GatewayUser = DefaultGatewayUser
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.DefaultGatewayBaseURL == "" {
		cfg.DefaultGatewayBaseURL = DefaultGatewayBaseURL
	}

	s := &ConnectionService{
		registry: registry,
		codec:    gateway.NewCodec(cfg.SecretKey),
		cfg:      cfg,
		policy:   policy.AllowAll{},
		now:      time.Now,
		newID:    session.NewID,
		logger:   logger,
		inst:     newInstruments(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect validates req, builds the client artifacts, optionally issues a
// gateway token, and registers the session. A token failure degrades the
// gateway URL to the manual login page instead of failing the request;
// a probe result never aborts it.
func (s *ConnectionService) Connect(ctx context.Context, req ConnectRequest) (*ConnectResult, error) {
	target := strings.TrimSpace(req.TargetAddress)
	if target == "" {
		return nil, ErrMissingTarget
	}

	usesGateway := s.cfg.GatewayEnabled && (req.PreferGateway == nil || *req.PreferGateway)
	mode := "direct"
	if usesGateway {
		mode = "gateway"
	}

	ctx, span := s.inst.tracer.Start(ctx, "ConnectionService.Connect")
	defer span.End()
	span.SetAttributes(
		attribute.String("rdp.target", target),
		attribute.String("rdp.mode", mode),
	)

	decision, err := s.policy.Evaluate(ctx, policy.EvaluationContext{
		Target:      target,
		Principal:   req.Principal,
		DisplayName: req.DisplayName,
		UsesGateway: usesGateway,
	})
	if err != nil {
		contextLogger(ctx, s.logger).Warn("target policy evaluation failed, denying",
			"target", target,
			"rule", decision.RuleName,
			"error", err,
		)
		s.countConnect(ctx, mode, "denied")
		s.record(ctx, audit.Event{
			Kind: audit.KindDenied, Target: target, Principal: req.Principal, Owner: req.Owner,
			Mode: mode, Rule: decision.RuleName, Reason: "policy evaluation failed",
		})
		span.SetStatus(codes.Error, "policy evaluation failed")
		return nil, fmt.Errorf("%w: %v", ErrTargetDenied, err)
	}
	if !decision.Allowed {
		contextLogger(ctx, s.logger).Info("connect denied by target policy",
			"target", target,
			"principal", req.Principal,
			"rule", decision.RuleName,
		)
		s.countConnect(ctx, mode, "denied")
		s.record(ctx, audit.Event{
			Kind: audit.KindDenied, Target: target, Principal: req.Principal, Owner: req.Owner,
			Mode: mode, Rule: decision.RuleName, Reason: decision.Reason,
		})
		span.SetStatus(codes.Error, "denied")
		return nil, fmt.Errorf("%w: %s", ErrTargetDenied, decision.Reason)
	}

	now := s.now().UTC()
	displayName := req.DisplayName
	if displayName == "" {
		displayName = session.DefaultDisplayName(target)
	}

	result := &ConnectResult{
		Descriptor: connection.Descriptor{Address: target, Username: req.Principal},
		DirectURI:  connection.DirectURI(target, req.Principal, req.Secret),
	}

	sess := &session.Session{
		ID:            s.newID(),
		TargetAddress: target,
		DisplayName:   displayName,
		Principal:     req.Principal,
		CreatedAt:     now,
		UsesGateway:   usesGateway,
	}

	if usesGateway {
		gatewayURL, issued := s.gatewayURL(ctx, req, target, now)
		sess.GatewayURL = &gatewayURL
		result.GatewayURL = gatewayURL
		result.TokenIssued = issued
	}

	if s.cfg.Preflight && s.prober != nil {
		reachable := s.prober.Probe(ctx, target)
		result.Reachable = &reachable
		span.SetAttributes(attribute.Bool("rdp.reachable", reachable))
	}

	if err := s.registry.Create(ctx, sess); err != nil {
		s.countConnect(ctx, mode, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "register failed")
		return nil, fmt.Errorf("failed to register session: %w", err)
	}
	result.Session = sess.Clone()

	if s.history != nil {
		s.history.Record(session.RecentTarget{
			Owner:   req.Owner,
			Address: target,
			UsedAt:  now,
		})
	}

	s.countConnect(ctx, mode, "ok")
	s.record(ctx, audit.Event{
		Timestamp: now, Kind: audit.KindConnect, SessionID: sess.ID, Target: target,
		Principal: req.Principal, Owner: req.Owner, Mode: mode,
	})
	span.SetAttributes(attribute.String("rdp.session_id", sess.ID))
	contextLogger(ctx, s.logger).Info("session created",
		"session_id", sess.ID,
		"target", target,
		"principal", req.Principal,
		"uses_gateway", usesGateway,
		"token_issued", result.TokenIssued,
	)

	return result, nil
}

// gatewayURL returns the pre-authenticated gateway URL for the request, or
// the bare login page when no token could be issued.
func (s *ConnectionService) gatewayURL(ctx context.Context, req ConnectRequest, target string, now time.Time) (string, bool) {
	base := req.GatewayBaseURL
	if base == "" {
		base = s.cfg.DefaultGatewayBaseURL
	}
	base = strings.TrimRight(base, "/")

	// The session's own default label differs from the gateway's.
	connName := gateway.ConnectionName(req.DisplayName, target)

	payload := gateway.NewRDPPayload(s.cfg.GatewayUser, connName, gateway.RDPTarget{
		Hostname: target,
		Username: req.Principal,
		Password: req.Secret,
	}, now.Add(s.cfg.TokenTTL))

	token, err := s.codec.Encode(payload)
	if err != nil {
		reason := tokenFailureReason(err)
		s.inst.tokens.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", reason)))
		// The error text of a key parse can echo key material; only the
		// classified reason is logged.
		contextLogger(ctx, s.logger).Warn("gateway token unavailable, falling back to manual login",
			"target", target,
			"reason", reason,
		)
		return base + "/", false
	}

	s.inst.tokens.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "issued")))
	return base + "/?data=" + url.QueryEscape(token), true
}

// ActiveSessions lists live sessions with their derived status, newest first.
func (s *ConnectionService) ActiveSessions(ctx context.Context) ([]session.View, error) {
	return s.registry.List(ctx)
}

// Disconnect removes a session. Returns session.ErrSessionNotFound when absent.
func (s *ConnectionService) Disconnect(ctx context.Context, id string) (*session.Session, error) {
	removed, err := s.registry.Remove(ctx, id)
	if err != nil {
		return nil, err
	}
	contextLogger(ctx, s.logger).Info("session disconnected",
		"session_id", removed.ID,
		"target", removed.TargetAddress,
	)
	s.record(ctx, audit.Event{
		Kind: audit.KindDisconnect, SessionID: removed.ID, Target: removed.TargetAddress,
		Principal: removed.Principal,
	})
	return removed, nil
}

// DisconnectAll removes every session and returns how many were removed.
func (s *ConnectionService) DisconnectAll(ctx context.Context) (int, error) {
	n, err := s.registry.RemoveAll(ctx)
	if err != nil {
		return 0, err
	}
	contextLogger(ctx, s.logger).Info("all sessions disconnected", "count", n)
	s.record(ctx, audit.Event{Kind: audit.KindDisconnectAll, Count: n})
	return n, nil
}

// Descriptor rebuilds the .rdp descriptor of a stored session.
func (s *ConnectionService) Descriptor(ctx context.Context, id string) (connection.Descriptor, error) {
	sess, err := s.registry.Get(ctx, id)
	if err != nil {
		return connection.Descriptor{}, err
	}
	return connection.Descriptor{Address: sess.TargetAddress, Username: sess.Principal}, nil
}

// SessionCount returns the number of stored sessions, aged out or not.
func (s *ConnectionService) SessionCount(ctx context.Context) (int, error) {
	return s.registry.Count(ctx)
}

// record appends ev to the journal. A journal failure never fails the
// operation that produced the event.
func (s *ConnectionService) record(ctx context.Context, ev audit.Event) {
	if s.journal == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}
	if err := s.journal.Append(ctx, ev); err != nil {
		contextLogger(ctx, s.logger).Error("failed to record session event",
			"kind", string(ev.Kind),
			"session_id", ev.SessionID,
			"error", err,
		)
	}
}

func (s *ConnectionService) countConnect(ctx context.Context, mode, result string) {
	s.inst.connects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("result", result),
	))
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, gateway.ErrInvalidKeyLength):
		return "invalid_key"
	case errors.Is(err, gateway.ErrSerialization):
		return "serialization"
	default:
		return "error"
	}
}
