package blocklog

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSeverityGatesLevel(t *testing.T) {
	SetSeverity("error")
	assert.False(t, levelVar.Level() <= levelTrace)

	SetSeverity("trace")
	assert.True(t, levelVar.Level() <= levelTrace)

	SetSeverity("bogus")
	assert.Equal(t, slog.LevelInfo, levelVar.Level(), "unrecognized severities fall back to info")

	SetSeverity("info")
}

func TestConfigureWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blockfs.log")

	require.NoError(t, Configure("info", "text", path))
	Infof("hello %s", "world")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")

	// Restore package state for any later test in this binary.
	require.NoError(t, Configure("info", "text", ""))
}
