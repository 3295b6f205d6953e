// Package query implements the 'instrument query' commands over the DuckDB
// store written by the profiler.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aeppert/bro-plugin-instrumentation/internal/duckdb"
	"github.com/aeppert/bro-plugin-instrumentation/internal/storage"
)

// NewQueryCmd creates the 'query' command.
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query persisted instrumentation sessions",
		Long: `Query instrumentation sessions persisted in DuckDB.

Commands:
  sessions  - List stored sessions
  top       - Most expensive functions of a session
  snapshots - Process snapshots of a session
  graph     - Call graph of a session in DOT format

The session argument defaults to the most recent session.

Examples:
  instrument query sessions --db instrument.duckdb
  instrument query top --by alloc_bytes --limit 10
  instrument query graph 3f1c... --cutoff 100 > chains.dot
`,
	}

	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewTopCmd())
	cmd.AddCommand(NewSnapshotsCmd())
	cmd.AddCommand(NewGraphCmd())

	return cmd
}

// openStore opens the database read-only.
func openStore(path string) (*storage.Storage, *sql.DB, error) {
	db, err := duckdb.OpenDB(duckdb.ReadOnlyDSN(path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return storage.NewReadOnlyStorage(db, zerolog.Nop()), db, nil
}

// resolveSession returns args[0] or the most recent session.
func resolveSession(ctx context.Context, store *storage.Storage, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", errors.New("no sessions stored")
	}
	return sessions[0].ID, nil
}
