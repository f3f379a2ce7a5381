package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RDPORTAL_SERVER_HTTP_ADDR.
const EnvPrefix = "RDPORTAL"

// configBaseName is the config file name without extension.
const configBaseName = "rdportal"

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. An empty path means
// ".env" in the working directory; a missing default file is not an error.
func LoadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for rdportal.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName(configBaseName)
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an rdportal config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".rdportal"))
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "rdportal"))
		}
	} else {
		paths = append(paths, "/etc/rdportal")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for rdportal.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configBaseName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// envKeys lists the scalar config keys that can be overridden from the
// environment. Arrays (api_keys, target_rules, allowed_origins) belong in
// the config file.
var envKeys = []string{
	"server.http_addr",
	"server.log_level",
	"server.tls_cert_file",
	"server.tls_key_file",

	"gateway.enabled",
	"gateway.secret_key",
	"gateway.scheme",
	"gateway.host",
	"gateway.port",
	"gateway.path",
	"gateway.token_ttl",
	"gateway.username",

	"probe.port",
	"probe.timeout",
	"probe.preflight",
	"probe.cache_ttl",

	"sessions.backend",
	"sessions.state_path",
	"sessions.sqlite_path",
	"sessions.redis_addr",
	"sessions.redis_key",
	"sessions.recent_capacity",
	"sessions.history_buffer",

	"policy.default_action",

	"telemetry.enabled",
	"telemetry.output",

	"rate_limit.enabled",
	"rate_limit.rate",
	"rate_limit.burst",
	"rate_limit.period",

	"journal.enabled",
	"journal.dir",
	"journal.retention_days",
	"journal.max_file_size_mb",
	"journal.cache_size",

	"dev_mode",
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: RDPORTAL_GATEWAY_SECRET_KEY overrides gateway.secret_key
func bindNestedEnvKeys() {
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, applies dev defaults and validates.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
