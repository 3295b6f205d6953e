package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
	"github.com/aeppert/bro-plugin-instrumentation/internal/chain"
	"github.com/aeppert/bro-plugin-instrumentation/internal/duckdb"
	"github.com/aeppert/bro-plugin-instrumentation/internal/errors"
	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
)

// SortColumns are the function_stats columns TopFunctions can order by.
var SortColumns = map[string]struct{}{
	"count": {}, "failures": {}, "anomalies": {}, "network_time": {},
	"wall_ns": {}, "cpu_ns": {}, "alloc_bytes": {}, "freed_bytes": {},
	"alloc_objects": {}, "freed_objects": {}, "read_bytes": {}, "write_bytes": {},
}

// Sessions lists stored sessions, most recent first.
func (s *Storage) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, service_name, format, started_at, persisted_at
		FROM sessions
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer errors.DeferClose(s.logger, rows, "failed to close rows")

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.ServiceName, &sess.Format, &sess.StartedAt, &sess.PersistedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// TopFunctions returns up to limit rows of a session ordered by column, descending.
func (s *Storage) TopFunctions(ctx context.Context, sessionID, column string, limit int) ([]aggregate.Row, error) {
	if _, ok := SortColumns[column]; !ok {
		return nil, fmt.Errorf("cannot sort by %q", column)
	}
	if limit <= 0 {
		limit = 20
	}

	// #nosec G202 - column is checked against SortColumns.
	query := `
		SELECT name, location, count, failures, anomalies, network_time, wall_ns, cpu_ns,
		       alloc_bytes, freed_bytes, alloc_objects, freed_objects, read_bytes, write_bytes
		FROM function_stats
		WHERE session_id = ?
		ORDER BY ` + column + ` DESC, key ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query function stats: %w", err)
	}
	defer errors.DeferClose(s.logger, rows, "failed to close rows")

	var out []aggregate.Row
	for rows.Next() {
		var (
			r aggregate.Row
			v [11]int64
		)
		if err := rows.Scan(&r.Name, &r.Location, &v[0], &v[1], &v[2], &r.NetworkTime,
			&v[3], &v[4], &v[5], &v[6], &v[7], &v[8], &v[9], &v[10]); err != nil {
			return nil, fmt.Errorf("failed to scan function stats: %w", err)
		}
		r.Count, r.Failures, r.Anomalies = uint64(v[0]), uint64(v[1]), uint64(v[2])
		r.WallNanos, r.CPUNanos = uint64(v[3]), uint64(v[4])
		r.AllocBytes, r.FreedBytes = uint64(v[5]), uint64(v[6])
		r.AllocObjects, r.FreedObjects = uint64(v[7]), uint64(v[8])
		r.ReadBytes, r.WriteBytes = uint64(v[9]), uint64(v[10])
		out = append(out, r)
	}
	return out, rows.Err()
}

// Functions returns the function table of a session in key order.
func (s *Storage) Functions(ctx context.Context, sessionID string) ([]functable.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, name, file, line, body FROM functions WHERE session_id = ? ORDER BY key
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}
	defer errors.DeferClose(s.logger, rows, "failed to close rows")

	var out []functable.Entry
	for rows.Next() {
		var (
			e   functable.Entry
			key int64
		)
		if err := rows.Scan(&key, &e.Name, &e.File, &e.Line, &e.Body); err != nil {
			return nil, fmt.Errorf("failed to scan function: %w", err)
		}
		e.Key = functable.Key(key)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Chains returns the call chains of a session in first-seen order.
func (s *Storage) Chains(ctx context.Context, sessionID string) ([]chain.Chain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT array_to_string(keys, ','), count, truncated
		FROM call_chains
		WHERE session_id = ?
		ORDER BY chain_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	defer errors.DeferClose(s.logger, rows, "failed to close rows")

	var out []chain.Chain
	for rows.Next() {
		var (
			list  string
			count int64
			c     chain.Chain
		)
		if err := rows.Scan(&list, &count, &c.Truncated); err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		ids, err := duckdb.ParseInt64List(list)
		if err != nil {
			return nil, fmt.Errorf("corrupt chain keys: %w", err)
		}
		for _, id := range ids {
			c.Keys = append(c.Keys, functable.Key(id))
		}
		c.Count = uint64(count)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SnapshotRecord is a stored process snapshot.
type SnapshotRecord struct {
	CapturedAt time.Time
	aggregate.Row
}

// Snapshots returns the process snapshots of a session in capture order.
func (s *Storage) Snapshots(ctx context.Context, sessionID string) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT captured_at, count, network_time, wall_ns, cpu_ns, alloc_bytes
		FROM snapshots
		WHERE session_id = ?
		ORDER BY captured_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer errors.DeferClose(s.logger, rows, "failed to close rows")

	var out []SnapshotRecord
	for rows.Next() {
		var (
			rec                        SnapshotRecord
			count, wall, cpu, allocated int64
		)
		if err := rows.Scan(&rec.CapturedAt, &count, &rec.NetworkTime, &wall, &cpu, &allocated); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		rec.Name = "process"
		rec.Count = uint64(count)
		rec.WallNanos, rec.CPUNanos, rec.AllocBytes = uint64(wall), uint64(cpu), uint64(allocated)
		out = append(out, rec)
	}
	return out, rows.Err()
}
