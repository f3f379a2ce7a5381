package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/netcore-rdp/rdportal/internal/domain/auth"
)

// RegisterCustomValidators registers rdportal-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// url_path: absolute URL path without query or fragment
	if err := v.RegisterValidation("url_path", validateURLPath); err != nil {
		return fmt.Errorf("failed to register url_path validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	if err := v.RegisterValidation("key_hash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register key_hash validator: %w", err)
	}
	// store_backend_target: the selected backend has its target configured
	v.RegisterStructValidation(validateStoreBackendTarget, SessionsConfig{})
	return nil
}

// validateURLPath accepts "/guacamole", "/a/b/" and rejects relative
// paths, whitespace, queries and fragments.
func validateURLPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if !strings.HasPrefix(p, "/") {
		return false
	}
	return !strings.ContainsAny(p, "?# \t\r\n")
}

// validateDuration accepts any time.ParseDuration string that is not negative.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d >= 0
}

func validateKeyHash(fl validator.FieldLevel) bool {
	return auth.DetectHashScheme(fl.Field().String()) != auth.SchemeUnknown
}

func validateStoreBackendTarget(sl validator.StructLevel) {
	s := sl.Current().Interface().(SessionsConfig)
	switch s.Backend {
	case BackendFile:
		if s.StatePath == "" {
			sl.ReportError(s.StatePath, "StatePath", "state_path", "store_backend_target", s.Backend)
		}
	case BackendSQLite:
		if s.SQLitePath == "" {
			sl.ReportError(s.SQLitePath, "SQLitePath", "sqlite_path", "store_backend_target", s.Backend)
		}
	case BackendRedis:
		if s.RedisAddr == "" {
			sl.ReportError(s.RedisAddr, "RedisAddr", "redis_addr", "store_backend_target", s.Backend)
		}
	}
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateGatewayKey(); err != nil {
		return err
	}

	if err := c.validateUniqueKeyNames(); err != nil {
		return err
	}

	return nil
}

// validateGatewayKey requires a secret key whenever the gateway is enabled.
func (c *Config) validateGatewayKey() error {
	if c.Gateway.Enabled && c.Gateway.SecretKey == "" {
		return errors.New("gateway.secret_key is required when the gateway is enabled (generate one with: rdportal gen-key)")
	}
	return nil
}

// validateUniqueKeyNames rejects duplicate API key names, which would merge
// two callers' histories.
func (c *Config) validateUniqueKeyNames() error {
	seen := make(map[string]int, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if j, dup := seen[k.Name]; dup {
			return fmt.Errorf("auth.api_keys[%d]: name %q already used by api_keys[%d]", i, k.Name, j)
		}
		seen[k.Name] = i
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, e.Param())
	case "required_if":
		if f := strings.Fields(e.Param()); len(f) == 2 {
			return fmt.Sprintf("%s is required when %s is %s", field, f[0], f[1])
		}
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters long", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hexadecimal":
		return fmt.Sprintf("%s must be hexadecimal", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "hostname_rfc1123|ip":
		return fmt.Sprintf("%s must be a hostname or IP address", field)
	case "url_path":
		return fmt.Sprintf("%s must be an absolute URL path like /guacamole", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration like 5s or 1h", field)
	case "key_hash":
		return fmt.Sprintf("%s must be an argon2id hash or sha256:<hex>", field)
	case "store_backend_target":
		return fmt.Sprintf("%s is required for the %s session backend", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
