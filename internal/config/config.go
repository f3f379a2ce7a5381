// Package config provides configuration types for the rdportal server.
//
// Configuration is file-based (rdportal.yaml) with environment overrides
// under the RDPORTAL_ prefix. Every section is optional; SetDefaults fills
// in a working single-node setup with in-memory session storage.
package config

import (
	"github.com/spf13/viper"
)

// DevGatewayKey is the example secret key shipped with the Guacamole
// encrypted-JSON extension. Dev mode uses it when no key is configured.
const DevGatewayKey = "4c0b569e4c96df157eee1b65dd0e4d41"

// Config is the top-level configuration for rdportal.
type Config struct {
	// Server configures the HTTP API listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Gateway configures the browser gateway (Guacamole) integration.
	Gateway GatewayConfig `yaml:"gateway" mapstructure:"gateway"`

	// Probe configures target reachability checks.
	Probe ProbeConfig `yaml:"probe" mapstructure:"probe"`

	// Sessions configures where sessions and connect history are stored.
	Sessions SessionsConfig `yaml:"sessions" mapstructure:"sessions"`

	// Auth configures the API keys that protect the recent-ips routes.
	// Optional: without keys those routes always answer 401.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Policy restricts which targets may be connected to.
	// Optional: with no rules every target is allowed.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// RateLimit throttles connect and probe requests per caller.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Journal records connect, deny and disconnect events to rotating
	// JSON Lines files. Optional: disabled by default.
	Journal JournalConfig `yaml:"journal" mapstructure:"journal"`

	// DevMode enables development features (debug logging, example keys).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:3001", "0.0.0.0:3001").
	// Defaults to "127.0.0.1:3001" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins is the CORS allowlist. Empty reflects any origin.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,required"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file" validate:"required_with=TLSCertFile"`
}

// GatewayConfig configures token issuance for the browser gateway.
type GatewayConfig struct {
	// Enabled allows sessions to use the gateway. When false every session
	// is direct regardless of what the client asks for.
	// Default: true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// SecretKey is the 128-bit AES key shared with the gateway, as 32 hex
	// characters. Required when Enabled (dev mode supplies the example key).
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key" validate:"omitempty,hexadecimal,len=32"`

	// Scheme, Host, Port and Path build the gateway base URL handed to
	// browsers. An empty Host means "derive from the request".
	// Defaults: "http", "", 8080, "/guacamole".
	Scheme string `yaml:"scheme" mapstructure:"scheme" validate:"omitempty,oneof=http https"`
	Host   string `yaml:"host" mapstructure:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port   int    `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path   string `yaml:"path" mapstructure:"path" validate:"omitempty,url_path"`

	// TokenTTL is how long an issued token stays valid (e.g., "1h").
	// Defaults to "1h".
	TokenTTL string `yaml:"token_ttl" mapstructure:"token_ttl" validate:"omitempty,duration"`

	// Username is the gateway-side principal tokens are issued for.
	// Defaults to "guest".
	Username string `yaml:"username" mapstructure:"username"`
}

// ProbeConfig configures reachability checks.
type ProbeConfig struct {
	// Port is the remote-desktop port probed. Defaults to 3389.
	Port int `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`

	// Timeout bounds a single probe (e.g., "2s"). Defaults to "2s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	// Preflight probes the target before every connect and reports the
	// result. It never blocks session creation.
	Preflight bool `yaml:"preflight" mapstructure:"preflight"`

	// CacheTTL is how long probe results are reused (e.g., "5s").
	// "0s" disables caching. Defaults to "5s".
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty,duration"`
}

// Session store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// SessionsConfig selects the session store. Each backend needs its own
// target setting; see the store_backend_target rule.
type SessionsConfig struct {
	// Backend is one of "memory", "file", "sqlite", "redis".
	// Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory file sqlite redis"`

	// StatePath is the JSON state file for the file backend.
	StatePath string `yaml:"state_path" mapstructure:"state_path"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// RedisAddr is host:port of the redis server for the redis backend.
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"omitempty,hostname_port"`

	// RedisKey prefixes every redis key. Defaults to "rdportal".
	RedisKey string `yaml:"redis_key" mapstructure:"redis_key"`

	// RecentCapacity bounds the in-memory connect history.
	// Defaults to 500.
	RecentCapacity int `yaml:"recent_capacity" mapstructure:"recent_capacity" validate:"omitempty,min=1"`

	// HistoryBuffer is the queue size between connects and the history
	// store. Defaults to 256.
	HistoryBuffer int `yaml:"history_buffer" mapstructure:"history_buffer" validate:"omitempty,min=1"`
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	// APIKeys are the accepted keys. Each key's name scopes its history.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines an API key by its hash.
type APIKeyConfig struct {
	// Name labels the key and owns the history it records.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// KeyHash is the Argon2id PHC string ("$argon2id$...") produced by
	// `rdportal hash-key`, or "sha256:<hex>".
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`
}

// PolicyConfig restricts connect targets.
type PolicyConfig struct {
	// DefaultAction applies when no rule matches. Defaults to "allow".
	DefaultAction string `yaml:"default_action" mapstructure:"default_action" validate:"omitempty,oneof=allow deny"`

	// TargetRules are evaluated in order; first match wins.
	TargetRules []RuleConfig `yaml:"target_rules" mapstructure:"target_rules" validate:"omitempty,dive"`
}

// RuleConfig defines a single target rule.
type RuleConfig struct {
	// Name is a human-readable identifier for this rule.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression over target, principal, display_name
	// and uses_gateway. Empty matches every request.
	Condition string `yaml:"condition" mapstructure:"condition"`

	// Action is "allow" or "deny".
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns on tracing and otel metrics.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Output is "stdout", "stderr" or a file path. Defaults to "stdout".
	Output string `yaml:"output" mapstructure:"output"`
}

// RateLimitConfig throttles POST /api/sessions/connect and /probe.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Rate requests are allowed per Period, with up to Burst back to back.
	Rate   int    `yaml:"rate" mapstructure:"rate" validate:"omitempty,min=1"`
	Burst  int    `yaml:"burst" mapstructure:"burst" validate:"omitempty,min=1"`
	Period string `yaml:"period" mapstructure:"period" validate:"omitempty,duration"`
}

// JournalConfig configures the session journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Dir holds the sessions-YYYY-MM-DD.jsonl files. Required when enabled.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required_if=Enabled true"`

	// RetentionDays is how long files are kept. Defaults to 30.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB starts a new file for the day past this size. Defaults to 50.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`

	// CacheSize is how many recent events GET /api/sessions/events can
	// return. Defaults to 500.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// SetDevDefaults applies permissive defaults for development mode.
// This allows running rdportal with no config file at all.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	if c.Gateway.SecretKey == "" {
		c.Gateway.SecretKey = DevGatewayKey
	}

	// SHA256 of "dev-api-key"
	if len(c.Auth.APIKeys) == 0 {
		c.Auth.APIKeys = []APIKeyConfig{
			{
				Name:    "dev",
				KeyHash: "sha256:6e1e4e1b8f8b36d08901cdb51b97841dfe20f5efd2fd2fd00768971408c46274",
			},
		}
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only; network access must be asked for explicitly.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:3001"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("gateway.enabled") {
		c.Gateway.Enabled = true
	}
	if c.Gateway.Scheme == "" {
		c.Gateway.Scheme = "http"
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8080
	}
	if c.Gateway.Path == "" {
		c.Gateway.Path = "/guacamole"
	}
	if c.Gateway.TokenTTL == "" {
		c.Gateway.TokenTTL = "1h"
	}
	if c.Gateway.Username == "" {
		c.Gateway.Username = "guest"
	}

	if c.Probe.Port == 0 {
		c.Probe.Port = 3389
	}
	if c.Probe.Timeout == "" {
		c.Probe.Timeout = "2s"
	}
	if c.Probe.CacheTTL == "" {
		c.Probe.CacheTTL = "5s"
	}

	if c.Sessions.Backend == "" {
		c.Sessions.Backend = BackendMemory
	}
	if c.Sessions.RedisKey == "" {
		c.Sessions.RedisKey = "rdportal"
	}
	if c.Sessions.RecentCapacity == 0 {
		c.Sessions.RecentCapacity = 500
	}
	if c.Sessions.HistoryBuffer == 0 {
		c.Sessions.HistoryBuffer = 256
	}

	if c.Policy.DefaultAction == "" {
		c.Policy.DefaultAction = "allow"
	}

	if c.Telemetry.Output == "" {
		c.Telemetry.Output = "stdout"
	}

	if c.Journal.RetentionDays == 0 {
		c.Journal.RetentionDays = 30
	}
	if c.Journal.MaxFileSizeMB == 0 {
		c.Journal.MaxFileSizeMB = 50
	}
	if c.Journal.CacheSize == 0 {
		c.Journal.CacheSize = 500
	}

	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = 30
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.RateLimit.Period == "" {
		c.RateLimit.Period = "1m"
	}
}
