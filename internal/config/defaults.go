package config

import (
	"github.com/aeppert/bro-plugin-instrumentation/internal/constants"
)

// Default returns a config with CPU and memory counters on and every output unset.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Format: constants.DefaultContentType,
		},
		Chains: ChainsConfig{
			Cutoff: constants.DefaultChainCutoff,
		},
		Counters: CountersConfig{
			CPU:    true,
			Memory: true,
		},
		Export: ExportConfig{
			ServiceName: constants.DefaultServiceName,
		},
		Storage: StorageConfig{
			Path: constants.DefaultDatabasePath,
		},
		Logging: LoggingConfig{
			Level: constants.DefaultLogLevel,
		},
	}
}
