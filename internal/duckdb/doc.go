// Package duckdb provides helpers for opening DuckDB databases and encoding
// values into DuckDB SQL literals.
//
//	db, err := duckdb.OpenDB("instrument.duckdb")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package duckdb
