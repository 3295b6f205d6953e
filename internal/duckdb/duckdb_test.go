package duckdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64ArrayToString(t *testing.T) {
	assert.Equal(t, "[]", Int64ArrayToString(nil))
	assert.Equal(t, "[1, 2, 3]", Int64ArrayToString([]int64{1, 2, 3}))
}

func TestParseInt64List(t *testing.T) {
	got, err := ParseInt64List("4, 5,6")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 6}, got)

	got, err = ParseInt64List("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseInt64List("1,x")
	assert.Error(t, err)
}

func TestInterpolateQuery(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	q := InterpolateQuery("SELECT *\n\tFROM t WHERE a = ? AND b = ? AND c = ? AND d = ? AND e = ?",
		[]interface{}{"it's", 42, true, ts, nil})
	assert.Equal(t,
		"SELECT * FROM t WHERE a = 'it''s' AND b = 42 AND c = true AND d = '2024-01-02T03:04:05Z' AND e = NULL", q)

	assert.Equal(t, "SELECT ?", InterpolateQuery("SELECT ?", nil))
}

func TestNormalizeDSN(t *testing.T) {
	assert.Equal(t, "", normalizeDSN(":memory:"))
	assert.Equal(t, "/tmp/x.duckdb?access_mode=read_write", normalizeDSN("/tmp/x.duckdb"))
	assert.Equal(t, "/tmp/x.duckdb?access_mode=read_only", normalizeDSN(ReadOnlyDSN("/tmp/x.duckdb")))
}

func TestOpenDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.duckdb")
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec("CREATE TABLE t (id INTEGER, ids INTEGER[])")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t VALUES (1, " + Int64ArrayToString([]int64{3, 4}) + ")")
	require.NoError(t, err)

	var s string
	require.NoError(t, db.QueryRow("SELECT array_to_string(ids, ',') FROM t").Scan(&s))
	ids, err := ParseInt64List(s)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids)
}
