package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	c := config.Default()
	require.False(t, c.VM.StressGC)
	require.Equal(t, 1, c.VM.InitialHeapMB)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, config.Default(), c)
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dyms.toml")
	require.NoError(t, os.WriteFile(path, []byte("[vm]\nstress_gc = true\ntrace = true\n"), 0o644))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.True(t, c.VM.StressGC)
	require.True(t, c.VM.Trace)
}
