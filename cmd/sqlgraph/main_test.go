package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlgraph version")
}

func TestGraph(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "sqlgraph.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log: {level: error}\n"), 0o600))

	out, err := run(t, "graph", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "human_feedback")
}

func TestBadConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "sqlgraph.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("store: {driver: floppy}\n"), 0o600))

	_, err := run(t, "graph", "--config", cfg)
	assert.ErrorContains(t, err, `unknown store driver "floppy"`)
}
