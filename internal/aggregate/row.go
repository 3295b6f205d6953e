// Package aggregate accumulates per-function counter deltas and serializes them
// as JSON or CSV record streams.
package aggregate

import (
	"github.com/aeppert/bro-plugin-instrumentation/internal/counters"
	"github.com/aeppert/bro-plugin-instrumentation/internal/safe"
)

// Row is the aggregate of every measured execution of one function body.
type Row struct {
	Name      string `json:"name"`
	Location  string `json:"location"`
	Count     uint64 `json:"count"`
	Failures  uint64 `json:"failures"`
	Anomalies uint64 `json:"anomalies"`
	counters.Snapshot
}

// NewRow returns a zeroed row stamped with a snapshot. A row built from an
// absolute reading doubles as a whole-process snapshot record.
func NewRow(name, location string, now counters.Snapshot) Row {
	return Row{Name: name, Location: location, Snapshot: now}
}

// Merge accumulates one execution. clamped is the number of dimensions the
// delta had clamped to zero.
func (r *Row) Merge(delta counters.Snapshot, clamped int) {
	r.Count = safe.AddUint64(r.Count, 1)
	r.Snapshot = r.Snapshot.Add(delta)
	if clamped > 0 {
		r.Anomalies = safe.AddUint64(r.Anomalies, 1)
	}
}
