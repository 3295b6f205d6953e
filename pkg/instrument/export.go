package instrument

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aeppert/bro-plugin-instrumentation/internal/export"
	"github.com/aeppert/bro-plugin-instrumentation/internal/storage"
)

var (
	// ErrExportNotConfigured is returned when an export is requested without a target.
	ErrExportNotConfigured = errors.New("export target not configured")
	// ErrStorageDisabled is returned by Persist when storage is disabled.
	ErrStorageDisabled = errors.New("storage disabled")
)

// ExportAdd sets an exported value. Exported values are attached to every
// metrics export as resource attributes.
func (p *Profiler) ExportAdd(key, value string) {
	p.exports.Set(key, value)
}

// ExportRemove deletes an exported value.
func (p *Profiler) ExportRemove(key string) {
	p.exports.Delete(key)
}

// ExportUpdate writes the current aggregates and exported values as OTLP
// JSON metrics to the export target, replacing its previous content.
func (p *Profiler) ExportUpdate() error {
	path := p.settings.Export.Target
	if path == "" {
		return ErrExportNotConfigured
	}

	md := export.Metrics(p.rows.Rows(), p.exports.Snapshot(), p.settings.Export.ServiceName, p.started, time.Now())
	if err := writeFile(path, func(f *os.File) error { return export.WriteMetrics(f, md) }); err != nil {
		return fmt.Errorf("failed to export metrics: %w", err)
	}

	p.logger.Debug().Str("target", path).Int("data_points", md.DataPointCount()).Msg("Exported metrics")
	return nil
}

// WriteProfile writes the aggregates as a pprof profile to the pprof target.
func (p *Profiler) WriteProfile() error {
	path := p.settings.Export.Pprof
	if path == "" {
		return ErrExportNotConfigured
	}

	prof := export.Profile(p.rows.Rows(), p.started, time.Since(p.started))
	if err := writeFile(path, func(f *os.File) error { return export.WriteProfile(f, prof) }); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// writeFile writes through a temporary file renamed over path.
func writeFile(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	//nolint:gosec // G301: output directories need standard permissions
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Persist stores the session, function table, aggregates, a process snapshot
// and the chain registry in DuckDB.
func (p *Profiler) Persist(ctx context.Context) error {
	if p.store == nil {
		return ErrStorageDisabled
	}

	keys := p.sortedKeys()
	rows := make([]storage.KeyedRow, 0, len(keys))
	for _, k := range keys {
		row, _ := p.rows.Get(k)
		rows = append(rows, storage.KeyedRow{Key: k, Row: row})
	}
	snapshot := p.processRow()

	return p.store.StoreBatch(ctx, storage.Batch{
		Session: storage.Session{
			ID:          p.sessionID,
			ServiceName: p.settings.Export.ServiceName,
			Format:      p.format.ContentType(),
			StartedAt:   p.started,
			PersistedAt: time.Now(),
		},
		Functions: p.functions.Entries(),
		Rows:      rows,
		Snapshot:  &snapshot,
		Chains:    p.chains.List(),
	})
}
