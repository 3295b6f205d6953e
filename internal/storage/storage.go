// Package storage persists instrumentation sessions in DuckDB.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aeppert/bro-plugin-instrumentation/internal/aggregate"
	"github.com/aeppert/bro-plugin-instrumentation/internal/chain"
	"github.com/aeppert/bro-plugin-instrumentation/internal/duckdb"
	"github.com/aeppert/bro-plugin-instrumentation/internal/errors"
	"github.com/aeppert/bro-plugin-instrumentation/internal/functable"
	"github.com/aeppert/bro-plugin-instrumentation/internal/retry"
	"github.com/aeppert/bro-plugin-instrumentation/internal/safe"
)

// Storage stores and queries persisted sessions.
type Storage struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.Mutex
}

// Session describes one profiler lifetime.
type Session struct {
	ID          string
	ServiceName string
	Format      string
	StartedAt   time.Time
	PersistedAt time.Time
}

// KeyedRow is an aggregate row with its function key.
type KeyedRow struct {
	Key functable.Key
	aggregate.Row
}

// Batch is everything persisted for a session in one transaction.
type Batch struct {
	Session   Session
	Functions []functable.Entry
	Rows      []KeyedRow
	Snapshot  *aggregate.Row
	Chains    []chain.Chain
}

// NewStorage creates the storage and its schema.
func NewStorage(db *sql.DB, logger zerolog.Logger) (*Storage, error) {
	s := &Storage{
		db:     db,
		logger: logger.With().Str("component", "instrument_storage").Logger(),
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// NewReadOnlyStorage wraps a database opened read-only. The schema is
// expected to exist already.
func NewReadOnlyStorage(db *sql.DB, logger zerolog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger.With().Str("component", "instrument_storage").Logger(),
	}
}

func (s *Storage) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id   TEXT PRIMARY KEY,
			service_name TEXT      NOT NULL,
			format       TEXT      NOT NULL,
			started_at   TIMESTAMP NOT NULL,
			persisted_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS functions (
			session_id TEXT    NOT NULL,
			key        INTEGER NOT NULL,
			name       TEXT    NOT NULL,
			file       TEXT    NOT NULL,
			line       INTEGER NOT NULL,
			body       INTEGER NOT NULL,
			PRIMARY KEY (session_id, key)
		);

		CREATE TABLE IF NOT EXISTS function_stats (
			session_id    TEXT    NOT NULL,
			key           INTEGER NOT NULL,
			name          TEXT    NOT NULL,
			location      TEXT    NOT NULL,
			count         BIGINT  NOT NULL,
			failures      BIGINT  NOT NULL,
			anomalies     BIGINT  NOT NULL,
			network_time  DOUBLE  NOT NULL,
			wall_ns       BIGINT  NOT NULL,
			cpu_ns        BIGINT  NOT NULL,
			alloc_bytes   BIGINT  NOT NULL,
			freed_bytes   BIGINT  NOT NULL,
			alloc_objects BIGINT  NOT NULL,
			freed_objects BIGINT  NOT NULL,
			read_bytes    BIGINT  NOT NULL,
			write_bytes   BIGINT  NOT NULL,
			PRIMARY KEY (session_id, key)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			session_id    TEXT      NOT NULL,
			captured_at   TIMESTAMP NOT NULL,
			count         BIGINT    NOT NULL,
			network_time  DOUBLE    NOT NULL,
			wall_ns       BIGINT    NOT NULL,
			cpu_ns        BIGINT    NOT NULL,
			alloc_bytes   BIGINT    NOT NULL,
			freed_bytes   BIGINT    NOT NULL,
			alloc_objects BIGINT    NOT NULL,
			freed_objects BIGINT    NOT NULL,
			read_bytes    BIGINT    NOT NULL,
			write_bytes   BIGINT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots (session_id);

		CREATE TABLE IF NOT EXISTS call_chains (
			session_id  TEXT      NOT NULL,
			chain_index INTEGER   NOT NULL,
			chain_hash  TEXT      NOT NULL,
			keys        INTEGER[] NOT NULL,
			count       BIGINT    NOT NULL,
			truncated   BOOLEAN   NOT NULL,
			PRIMARY KEY (session_id, chain_index)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Instrumentation storage schema initialized")
	return nil
}

func i64(v uint64) int64 {
	n, _ := safe.Uint64ToInt64(v)
	return n
}

// StoreBatch writes a session and its data, replacing earlier values for the
// same session. Transaction conflicts with another writer are retried.
func (s *Storage) StoreBatch(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return retry.Do(ctx, storeRetry, func() error {
		return s.storeBatch(ctx, b)
	}, isTransactionConflict)
}

var storeRetry = retry.Config{
	MaxRetries:     5,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     250 * time.Millisecond,
	Jitter:         0.1,
}

// isTransactionConflict reports whether err is a DuckDB write conflict.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Conflict on") ||
		strings.Contains(msg, "TransactionContext Error") ||
		strings.Contains(msg, "serialization")
}

func (s *Storage) storeBatch(ctx context.Context, b Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer errors.DeferRollback(s.logger, tx)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, service_name, format, started_at, persisted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET persisted_at = EXCLUDED.persisted_at
	`, b.Session.ID, b.Session.ServiceName, b.Session.Format, b.Session.StartedAt, b.Session.PersistedAt); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	for _, f := range b.Functions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO functions (session_id, key, name, file, line, body)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (session_id, key) DO NOTHING
		`, b.Session.ID, int64(f.Key), f.Name, f.File, f.Line, f.Body); err != nil {
			return fmt.Errorf("failed to store function %d: %w", f.Key, err)
		}
	}

	for _, r := range b.Rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO function_stats (
				session_id, key, name, location, count, failures, anomalies, network_time,
				wall_ns, cpu_ns, alloc_bytes, freed_bytes, alloc_objects, freed_objects,
				read_bytes, write_bytes
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.Session.ID, int64(r.Key), r.Name, r.Location, i64(r.Count), i64(r.Failures), i64(r.Anomalies),
			r.NetworkTime, i64(r.WallNanos), i64(r.CPUNanos), i64(r.AllocBytes), i64(r.FreedBytes),
			i64(r.AllocObjects), i64(r.FreedObjects), i64(r.ReadBytes), i64(r.WriteBytes)); err != nil {
			return fmt.Errorf("failed to store stats for function %d: %w", r.Key, err)
		}
	}

	if snap := b.Snapshot; snap != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (
				session_id, captured_at, count, network_time, wall_ns, cpu_ns, alloc_bytes,
				freed_bytes, alloc_objects, freed_objects, read_bytes, write_bytes
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.Session.ID, b.Session.PersistedAt, i64(snap.Count), snap.NetworkTime, i64(snap.WallNanos),
			i64(snap.CPUNanos), i64(snap.AllocBytes), i64(snap.FreedBytes), i64(snap.AllocObjects),
			i64(snap.FreedObjects), i64(snap.ReadBytes), i64(snap.WriteBytes)); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
	}

	for i, c := range b.Chains {
		ids := make([]int64, len(c.Keys))
		for j, k := range c.Keys {
			ids[j] = int64(k)
		}

		// #nosec G202 - the list literal is built from integers, not user input.
		query := `
			INSERT INTO call_chains (session_id, chain_index, chain_hash, keys, count, truncated)
			VALUES (?, ?, ?, ` + duckdb.Int64ArrayToString(ids) + `, ?, ?)
			ON CONFLICT (session_id, chain_index) DO UPDATE SET count = EXCLUDED.count
		`
		args := []interface{}{b.Session.ID, i, fmt.Sprintf("%016x", c.Hash()), i64(c.Count), c.Truncated}
		if e := s.logger.Trace(); e.Enabled() {
			e.Str("query", duckdb.InterpolateQuery(query, args)).Msg("Storing call chain")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to store chain %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().
		Str("session_id", b.Session.ID).
		Int("functions", len(b.Functions)).
		Int("rows", len(b.Rows)).
		Int("chains", len(b.Chains)).
		Msg("Stored instrumentation batch")

	return nil
}
