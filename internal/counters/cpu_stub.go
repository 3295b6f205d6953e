//go:build !unix

package counters

import "errors"

// CPUSource is unavailable on this platform and always reads zero.
type CPUSource struct{}

// NewCPUSource creates a process CPU time source.
func NewCPUSource() *CPUSource { return &CPUSource{} }

// Name implements Source.
func (c *CPUSource) Name() string { return "cpu" }

// Read implements Source.
func (c *CPUSource) Read(_ *Snapshot) error {
	return errors.New("process CPU time not supported on this platform")
}
