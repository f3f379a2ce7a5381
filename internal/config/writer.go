package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteFile when the target exists and
// overwriting was not requested.
var ErrConfigExists = errors.New("config file already exists")

const starterHeader = `# rdportal configuration
# Every key can be overridden with RDPORTAL_<SECTION>_<KEY>,
# e.g. RDPORTAL_GATEWAY_SECRET_KEY.
`

// Starter returns a config with every default filled in and the given
// gateway key, suitable as a starting point for editing.
func Starter(secretKey string) *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	cfg.Gateway.Enabled = true
	cfg.Gateway.SecretKey = secretKey
	return cfg
}

// MarshalYAMLDocument renders c as YAML with the starter header.
func (c *Config) MarshalYAMLDocument() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(starterHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes cfg to path with 0600 permissions, since it carries the
// gateway secret. Parent directories are created as needed.
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	data, err := cfg.MarshalYAMLDocument()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
