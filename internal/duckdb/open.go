package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net/url"
	"strings"

	duckdbDriver "github.com/marcboeker/go-duckdb"
)

// bootQueries run on every pooled connection.
var bootQueries = []string{
	"SET preserve_insertion_order = true",
}

// OpenDB opens a DuckDB database. An empty dsn or ":memory:" opens an
// in-memory database.
func OpenDB(dsn string) (*sql.DB, error) {
	connector, err := duckdbDriver.NewConnector(normalizeDSN(dsn), func(execer driver.ExecerContext) error {
		ctx := context.Background()
		for _, query := range bootQueries {
			if _, err := execer.ExecContext(ctx, query, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sql.OpenDB(connector), nil
}

// normalizeDSN maps ":memory:" to the empty DSN and makes sure file databases
// are opened read-write unless the caller chose an access mode.
func normalizeDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}

	sep := strings.IndexByte(dsn, '?')
	path := dsn
	query := ""
	if sep >= 0 {
		path = dsn[:sep]
		query = dsn[sep+1:]
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return dsn
	}
	if !params.Has("access_mode") {
		params.Set("access_mode", "read_write")
	}

	return path + "?" + params.Encode()
}

// ReadOnlyDSN returns dsn with access_mode=read_only, for tooling that
// inspects a database another process may be writing.
func ReadOnlyDSN(path string) string {
	params := url.Values{}
	params.Set("access_mode", "read_only")
	return path + "?" + params.Encode()
}
