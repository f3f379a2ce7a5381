package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/netcore-rdp/rdportal/internal/adapter/inbound/http"
	journalstore "github.com/netcore-rdp/rdportal/internal/adapter/outbound/audit"
	"github.com/netcore-rdp/rdportal/internal/adapter/outbound/memory"
	"github.com/netcore-rdp/rdportal/internal/adapter/outbound/redisstore"
	"github.com/netcore-rdp/rdportal/internal/adapter/outbound/sqlite"
	"github.com/netcore-rdp/rdportal/internal/adapter/outbound/state"
	"github.com/netcore-rdp/rdportal/internal/config"
	"github.com/netcore-rdp/rdportal/internal/domain/auth"
	"github.com/netcore-rdp/rdportal/internal/domain/policy"
	"github.com/netcore-rdp/rdportal/internal/domain/ratelimit"
	"github.com/netcore-rdp/rdportal/internal/domain/reachability"
	"github.com/netcore-rdp/rdportal/internal/domain/session"
	"github.com/netcore-rdp/rdportal/internal/service"
	"github.com/netcore-rdp/rdportal/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server",
	Long: `Start the rdportal API server.

Sessions live in the configured backend (memory, file, sqlite or redis).
With the gateway enabled, connects return a pre-authenticated gateway URL
alongside the .rdp descriptor and rdp:// URI.

Examples:
  # Start with config file settings
  rdportal start

  # Start with the example gateway key and a "dev" API key
  rdportal start --dev

  # Start with a specific config file
  rdportal --config /path/to/rdportal.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, example gateway key, dev API key)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so the --dev flag can apply first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("development mode enabled: example gateway key and dev API key are active; do not use in production")
	}

	// Write PID file so "rdportal stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("rdportal stopped")
	return nil
}

// run wires every component together and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Output:         cfg.Telemetry.Output,
		ServiceName:    "rdportal",
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(ctx, cfg.Sessions, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.close(); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}()
	logger.Info("session store ready", "backend", stores.backend)

	registry := session.NewRegistry(stores.sessions)

	probeTimeout := mustDuration(cfg.Probe.Timeout, reachability.DefaultTimeout)
	prober := service.NewProbeCache(
		reachability.NewProber(
			reachability.WithPort(cfg.Probe.Port),
			reachability.WithTimeout(probeTimeout),
		),
		logger,
		service.WithProbeCacheTTL(mustDuration(cfg.Probe.CacheTTL, service.DefaultProbeCacheTTL)),
	)

	targetPolicy, err := service.NewTargetPolicy(targetRules(cfg.Policy), policy.Action(cfg.Policy.DefaultAction), logger)
	if err != nil {
		return fmt.Errorf("failed to compile target rules: %w", err)
	}
	logger.Info("target policy loaded",
		"rules", len(cfg.Policy.TargetRules),
		"default_action", cfg.Policy.DefaultAction,
	)

	history := service.NewHistoryService(stores.recent, logger,
		service.WithHistoryChannelSize(cfg.Sessions.HistoryBuffer))
	history.Start(ctx)
	defer history.Stop()

	connOpts := []service.ConnectionOption{
		service.WithTargetPolicy(targetPolicy),
		service.WithPreflightProber(prober),
		service.WithHistory(history),
	}

	var journal *journalstore.FileJournal
	if cfg.Journal.Enabled {
		journal, err = journalstore.Open(journalstore.Config{
			Dir:           cfg.Journal.Dir,
			RetentionDays: cfg.Journal.RetentionDays,
			MaxFileSizeMB: cfg.Journal.MaxFileSizeMB,
			CacheSize:     cfg.Journal.CacheSize,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to open session journal: %w", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Error("failed to close session journal", "error", err)
			}
		}()
		connOpts = append(connOpts, service.WithJournal(journal))
		logger.Info("session journal enabled",
			"dir", cfg.Journal.Dir,
			"retention_days", cfg.Journal.RetentionDays,
		)
	}

	connections := service.NewConnectionService(registry, service.ConnectionConfig{
		GatewayEnabled:        cfg.Gateway.Enabled,
		SecretKey:             cfg.Gateway.SecretKey,
		GatewayUser:           cfg.Gateway.Username,
		TokenTTL:              mustDuration(cfg.Gateway.TokenTTL, time.Hour),
		DefaultGatewayBaseURL: defaultGatewayBaseURL(cfg.Gateway),
		Preflight:             cfg.Probe.Preflight,
	}, logger, connOpts...)

	validator, err := keyValidator(cfg.Auth)
	if err != nil {
		return err
	}

	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithLogger(logger),
		http.WithHealthChecker(http.NewHealthChecker(connections, history, Version)),
		http.WithProber(prober),
		http.WithRecentTargets(history),
		http.WithGatewayURLResolver(http.NewGatewayURLResolver(http.GatewayURLConfig{
			Scheme: cfg.Gateway.Scheme,
			Host:   cfg.Gateway.Host,
			Port:   cfg.Gateway.Port,
			Path:   cfg.Gateway.Path,
		}, logger)),
		http.WithVersion(Version),
	}
	if validator != nil {
		opts = append(opts, http.WithAPIKeyValidator(validator))
	}
	if journal != nil {
		opts = append(opts, http.WithEventLog(journal))
	}
	if cfg.Server.TLSCertFile != "" {
		opts = append(opts, http.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}
	if cfg.RateLimit.Enabled {
		limiter := memory.NewRateLimiter(logger)
		limiter.StartCleanup(ctx)
		defer limiter.Stop()
		opts = append(opts, http.WithRateLimit(limiter, rateLimit(cfg.RateLimit)))
		logger.Info("rate limiting enabled",
			"rate", cfg.RateLimit.Rate,
			"burst", cfg.RateLimit.Burst,
			"period", cfg.RateLimit.Period,
		)
	}

	logger.Info("rdportal starting",
		"addr", cfg.Server.HTTPAddr,
		"gateway", cfg.Gateway.Enabled,
		"preflight", cfg.Probe.Preflight,
		"api_keys", len(cfg.Auth.APIKeys),
		"version", Version,
	)

	return http.NewHTTPTransport(connections, opts...).Start(ctx)
}

// sessionStores is the storage chosen by sessions.backend.
type sessionStores struct {
	backend  string
	sessions session.SessionStore
	recent   session.RecentTargetStore
	close    func() error
}

// openStores opens the configured session backend. The memory backend
// keeps recent targets in a bounded ring; the others persist both.
func openStores(ctx context.Context, cfg config.SessionsConfig, logger *slog.Logger) (*sessionStores, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", config.BackendMemory:
		return &sessionStores{
			backend:  config.BackendMemory,
			sessions: memory.NewSessionStore(),
			recent:   memory.NewRecentTargetStore(cfg.RecentCapacity),
			close:    noop,
		}, nil

	case config.BackendFile:
		file := state.NewFileStateStore(cfg.StatePath, logger)
		// Load once so a corrupt file fails startup instead of the first request.
		if _, err := file.Load(); err != nil {
			return nil, fmt.Errorf("failed to load state file %s: %w", cfg.StatePath, err)
		}
		store := state.NewSessionStore(file)
		return &sessionStores{
			backend:  config.BackendFile,
			sessions: store,
			recent:   store,
			close:    noop,
		}, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return &sessionStores{
			backend:  config.BackendSQLite,
			sessions: store,
			recent:   store,
			close:    store.Close,
		}, nil

	case config.BackendRedis:
		store, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisKey, redisstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return &sessionStores{
			backend:  config.BackendRedis,
			sessions: store,
			recent:   store,
			close:    store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// targetRules converts configured rules into policy rules.
func targetRules(cfg config.PolicyConfig) []policy.Rule {
	rules := make([]policy.Rule, 0, len(cfg.TargetRules))
	for _, r := range cfg.TargetRules {
		rules = append(rules, policy.Rule{
			Name:      r.Name,
			Condition: r.Condition,
			Action:    policy.Action(r.Action),
		})
	}
	return rules
}

// rateLimit converts the configured limit.
func rateLimit(cfg config.RateLimitConfig) ratelimit.Limit {
	return ratelimit.Limit{
		Rate:   cfg.Rate,
		Burst:  cfg.Burst,
		Period: mustDuration(cfg.Period, time.Minute),
	}
}

// keyValidator builds the API key validator. Returns nil when no keys are
// configured, which leaves the recent-target routes disabled.
func keyValidator(cfg config.AuthConfig) (*auth.Validator, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, nil
	}
	keys := make([]*auth.APIKey, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if auth.DetectHashScheme(k.KeyHash) == auth.SchemeUnknown {
			return nil, fmt.Errorf("api key %q: unsupported hash", k.Name)
		}
		keys = append(keys, &auth.APIKey{Name: k.Name, Hash: k.KeyHash})
	}
	return auth.NewValidator(memory.NewKeyStore(keys...)), nil
}

// defaultGatewayBaseURL is the gateway URL used when a request carries no
// usable host. It matches what the resolver builds for "localhost".
func defaultGatewayBaseURL(cfg config.GatewayConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s%s", cfg.Scheme, net.JoinHostPort(host, strconv.Itoa(cfg.Port)), cfg.Path)
}

// mustDuration parses a validated duration string, falling back to def
// when it is empty.
func mustDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// discardLogger is used by commands that must not write logs to stdout.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
