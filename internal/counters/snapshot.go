// Package counters captures point-in-time readings of process resource counters
// and computes per-execution deltas from them.
package counters

import (
	"github.com/aeppert/bro-plugin-instrumentation/internal/safe"
)

// Snapshot is a reading of every tracked resource dimension at one instant.
// All dimensions are monotonic for a healthy source.
type Snapshot struct {
	NetworkTime  float64 `json:"network_time"`
	WallNanos    uint64  `json:"wall_ns"`
	CPUNanos     uint64  `json:"cpu_ns"`
	AllocBytes   uint64  `json:"alloc_bytes"`
	FreedBytes   uint64  `json:"freed_bytes"`
	AllocObjects uint64  `json:"alloc_objects"`
	FreedObjects uint64  `json:"freed_objects"`
	ReadBytes    uint64  `json:"read_bytes"`
	WriteBytes   uint64  `json:"write_bytes"`
}

// Sub returns s - prev element-wise. Dimensions that moved backwards are clamped to
// zero; the second result is the number of clamped dimensions.
func (s Snapshot) Sub(prev Snapshot) (Snapshot, int) {
	var (
		d       Snapshot
		clamped int
		c       bool
	)
	count := func(b bool) {
		if b {
			clamped++
		}
	}

	d.NetworkTime, c = safe.SubFloat64(s.NetworkTime, prev.NetworkTime)
	count(c)
	d.WallNanos, c = safe.SubUint64(s.WallNanos, prev.WallNanos)
	count(c)
	d.CPUNanos, c = safe.SubUint64(s.CPUNanos, prev.CPUNanos)
	count(c)
	d.AllocBytes, c = safe.SubUint64(s.AllocBytes, prev.AllocBytes)
	count(c)
	d.FreedBytes, c = safe.SubUint64(s.FreedBytes, prev.FreedBytes)
	count(c)
	d.AllocObjects, c = safe.SubUint64(s.AllocObjects, prev.AllocObjects)
	count(c)
	d.FreedObjects, c = safe.SubUint64(s.FreedObjects, prev.FreedObjects)
	count(c)
	d.ReadBytes, c = safe.SubUint64(s.ReadBytes, prev.ReadBytes)
	count(c)
	d.WriteBytes, c = safe.SubUint64(s.WriteBytes, prev.WriteBytes)
	count(c)

	return d, clamped
}

// Add returns s + o element-wise.
func (s Snapshot) Add(o Snapshot) Snapshot {
	return Snapshot{
		NetworkTime:  s.NetworkTime + o.NetworkTime,
		WallNanos:    safe.AddUint64(s.WallNanos, o.WallNanos),
		CPUNanos:     safe.AddUint64(s.CPUNanos, o.CPUNanos),
		AllocBytes:   safe.AddUint64(s.AllocBytes, o.AllocBytes),
		FreedBytes:   safe.AddUint64(s.FreedBytes, o.FreedBytes),
		AllocObjects: safe.AddUint64(s.AllocObjects, o.AllocObjects),
		FreedObjects: safe.AddUint64(s.FreedObjects, o.FreedObjects),
		ReadBytes:    safe.AddUint64(s.ReadBytes, o.ReadBytes),
		WriteBytes:   safe.AddUint64(s.WriteBytes, o.WriteBytes),
	}
}
