package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/aeppert/bro-plugin-instrumentation/internal/duckdb"
)

// NewMemoryDatabase opens an in-memory DuckDB database closed at test end.
func NewMemoryDatabase(t *testing.T) *sql.DB {
	t.Helper()

	db, err := duckdb.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

// DatabasePath returns a DuckDB file path inside the test's temp directory.
func DatabasePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "instrument.duckdb")
}
