// Package version holds the build metadata reported by "instrument version".
package version

import "runtime"

// Set at build time with -ldflags "-X github.com/aeppert/bro-plugin-instrumentation/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"

	// GoVersion is the toolchain that built the binary.
	GoVersion = runtime.Version()
)
