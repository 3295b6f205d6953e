package helpers

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFormatFlag(t *testing.T) {
	var format string
	cmd := &cobra.Command{Use: "top"}
	AddFormatFlag(cmd, &format, FormatTable, []OutputFormat{FormatTable, FormatJSON})

	require.NoError(t, cmd.ParseFlags([]string{"-o", "json"}))
	assert.Equal(t, "json", format)
}

func TestAddDatabaseFlag(t *testing.T) {
	var db string
	cmd := &cobra.Command{Use: "sessions"}
	AddDatabaseFlag(cmd, &db, "instrument.duckdb")

	assert.Equal(t, "instrument.duckdb", db)
	require.NoError(t, cmd.ParseFlags([]string{"--db", "/tmp/x.duckdb"}))
	assert.Equal(t, "/tmp/x.duckdb", db)
}

func TestValidateFormat(t *testing.T) {
	supported := []OutputFormat{FormatTable, FormatCSV}
	assert.NoError(t, ValidateFormat("csv", supported))

	err := ValidateFormat("xml", supported)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table, csv")
}
