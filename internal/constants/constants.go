// Package constants defines shared configuration constants.
package constants

var (
	// ConfigFile is the config file looked up in the working directory.
	ConfigFile = "instrument.yaml"

	// ConfigEnv names a config file explicitly.
	ConfigEnv = "INSTRUMENT_CONFIG"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "INSTRUMENT_"

	DefaultServiceName = "zeek"

	DefaultDatabasePath = "instrument.duckdb"
)

// Output and collection defaults.
const (
	// DefaultContentType selects JSON records.
	DefaultContentType = "application/json"

	DefaultChainCutoff = 1

	DefaultLogLevel = "info"

	// BuiltinFile is the pseudo source file reported for measured builtins.
	BuiltinFile = "<builtin>"

	// ProcessFile is the pseudo source file of process snapshot records.
	ProcessFile = "<process>"
)
