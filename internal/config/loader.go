package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
	"github.com/aeppert/bro-plugin-instrumentation/internal/safe"
)

// Loader reads and writes the config file.
type Loader struct {
	path string
}

// NewLoader creates a loader for path. An empty path is resolved in this order:
//  1. INSTRUMENT_CONFIG environment variable.
//  2. instrument.yaml in the working directory.
func NewLoader(path string) *Loader {
	if path == "" {
		path = os.Getenv(constants.ConfigEnv)
	}
	if path == "" {
		path = constants.ConfigFile
	}
	return &Loader{path: path}
}

// Path returns the config file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the config file over the defaults and applies environment
// overrides. A missing file yields the defaults with overrides applied.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	data, err := safe.ReadFile(l.path, nil)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", l.path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", l.path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to the config file, creating parent directories.
func (l *Loader) Save(cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(l.path); dir != "." {
		//nolint:gosec // G301: config directories need standard permissions
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
