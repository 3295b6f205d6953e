// Package config provides configuration loading, validation and schema output.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Config is the instrumentation configuration file (instrument.yaml).
type Config struct {
	Output     OutputConfig     `yaml:"output" envPrefix:"OUTPUT_"`
	Collection CollectionConfig `yaml:"collection" envPrefix:"COLLECTION_"`
	Functions  FunctionsConfig  `yaml:"functions" envPrefix:"FUNCTIONS_"`
	Chains     ChainsConfig     `yaml:"chains" envPrefix:"CHAINS_"`
	Counters   CountersConfig   `yaml:"counters" envPrefix:"COUNTERS_"`
	Paths      PathsConfig      `yaml:"paths" envPrefix:"PATHS_"`
	Filter     FilterConfig     `yaml:"filter" envPrefix:"FILTER_"`
	Export     ExportConfig     `yaml:"export" envPrefix:"EXPORT_"`
	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOGGING_"`
}

// OutputConfig selects the record format shared by every stream.
type OutputConfig struct {
	// Format is a content type. Unrecognized values fall back to JSON.
	Format string `yaml:"format" env:"FORMAT" jsonschema:"enum=application/json,enum=text/csv"`
}

// CollectionConfig controls periodic process snapshots.
type CollectionConfig struct {
	// Timer is the host time threshold in seconds. Zero disables it.
	Timer float64 `yaml:"timer" env:"TIMER" jsonschema:"minimum=0"`
	// Count is the notification count threshold. Zero disables it.
	Count uint64 `yaml:"count" env:"COUNT"`
	// Target is the snapshot output file.
	Target string `yaml:"target,omitempty" env:"TARGET"`
	// Builtins enables measurement of builtin functions.
	Builtins bool `yaml:"builtins" env:"BUILTINS"`
}

// FunctionsConfig controls the full aggregate dump.
type FunctionsConfig struct {
	Target string `yaml:"target,omitempty" env:"TARGET"`
}

// ChainsConfig controls the call graph dump.
type ChainsConfig struct {
	Target string `yaml:"target,omitempty" env:"TARGET"`
	// Cutoff is the minimum chain count rendered in the graph.
	Cutoff uint64 `yaml:"cutoff" env:"CUTOFF"`
	// MaxLength caps recorded chain paths. Zero means unlimited.
	MaxLength int `yaml:"max_length" env:"MAX_LENGTH" jsonschema:"minimum=0"`
}

// CountersConfig enables counter sources.
type CountersConfig struct {
	CPU    bool `yaml:"cpu" env:"CPU"`
	Memory bool `yaml:"memory" env:"MEMORY"`
	IO     bool `yaml:"io" env:"IO"`
}

// PathsConfig controls how source paths are displayed.
type PathsConfig struct {
	StripPrefixes []string `yaml:"strip_prefixes,omitempty" env:"STRIP_PREFIXES"`
}

// FilterConfig selects which function bodies are measured.
type FilterConfig struct {
	// Expression is a CEL boolean over name, file, line, body and kind.
	Expression string `yaml:"expression,omitempty" env:"EXPRESSION"`
}

// ExportConfig controls the OTLP metrics and pprof outputs.
type ExportConfig struct {
	Target      string `yaml:"target,omitempty" env:"TARGET"`
	Pprof       string `yaml:"pprof,omitempty" env:"PPROF"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// StorageConfig controls DuckDB persistence.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error,enum=off"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// JSONSchema returns the JSON schema of the config file.
func JSONSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		FieldNameTag:              "yaml",
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "instrument.yaml"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
