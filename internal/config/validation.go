package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/aeppert/bro-plugin-instrumentation/internal/filter"
)

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "off": true,
}

// Validate checks cfg and returns every problem found, joined.
// Output formats are not validated; unknown values fall back to JSON.
func Validate(cfg *Config) error {
	var errs []error

	if t := cfg.Collection.Timer; t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		errs = append(errs, fmt.Errorf("collection.timer must be a non-negative number of seconds, got %v", t))
	}
	if cfg.Chains.MaxLength < 0 {
		errs = append(errs, fmt.Errorf("chains.max_length must not be negative, got %d", cfg.Chains.MaxLength))
	}
	if !logLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of trace, debug, info, warn, error, off", cfg.Logging.Level))
	}
	if cfg.Storage.Enabled && cfg.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage is enabled"))
	}
	if cfg.Export.Target != "" && cfg.Export.ServiceName == "" {
		errs = append(errs, errors.New("export.service_name is required when export.target is set"))
	}
	if _, err := filter.New(cfg.Filter.Expression); err != nil {
		errs = append(errs, fmt.Errorf("filter.expression: %w", err))
	}

	return errors.Join(errs...)
}
