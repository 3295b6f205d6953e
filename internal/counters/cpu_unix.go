//go:build unix

package counters

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CPUSource reads the process user+system CPU time with getrusage(2).
type CPUSource struct{}

// NewCPUSource creates a process CPU time source.
func NewCPUSource() *CPUSource { return &CPUSource{} }

// Name implements Source.
func (c *CPUSource) Name() string { return "cpu" }

// Read implements Source.
func (c *CPUSource) Read(s *Snapshot) error {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return fmt.Errorf("getrusage: %w", err)
	}
	total := ru.Utime.Nano() + ru.Stime.Nano()
	if total < 0 {
		total = 0
	}
	s.CPUNanos = uint64(total)
	return nil
}
