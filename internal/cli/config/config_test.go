package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/aeppert/bro-plugin-instrumentation/internal/config"
)

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instrument.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestShowCmd_AppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, "collection:\n  count: 50\n")
	t.Setenv("INSTRUMENT_COLLECTION_TIMER", "2.5")

	out, err := execute(NewConfigCmd(), "show", "--config", path)
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, uint64(50), cfg.Collection.Count)
	assert.Equal(t, 2.5, cfg.Collection.Timer)
	assert.Equal(t, config.Default().Output.Format, cfg.Output.Format)
}

func TestValidateCmd(t *testing.T) {
	valid := writeConfig(t, "chains:\n  max_length: 8\n")
	out, err := execute(NewConfigCmd(), "validate", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	invalid := writeConfig(t, "collection:\n  timer: -1\nlogging:\n  level: loud\n")
	_, err = execute(NewConfigCmd(), "validate", invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection.timer")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestSchemaCmd(t *testing.T) {
	out, err := execute(NewConfigCmd(), "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "collection")
	assert.Contains(t, props, "storage")
}
