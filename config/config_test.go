package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtcore/mtcore/config"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	attrs, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Greater(t, attrs.Workers, 0)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("MTCORE_WORKERS", "3")
	t.Setenv("MTCORE_MAX_TASKS", "128")

	attrs, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 3, attrs.Workers)
	require.Equal(t, 128, attrs.MaxTasks)
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("MTCORE_WORKERS", "3")

	path := filepath.Join(t.TempDir(), "mtcore.toml")
	require.NoError(t, os.WriteFile(path, []byte("workers = 7\nmax_queues = 16\n"), 0o644))

	attrs, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, attrs.Workers)
	require.Equal(t, 16, attrs.MaxQueues)
}

func TestLoad_UnparsableFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestGetDurEnv(t *testing.T) {
	t.Setenv("MTCORE_DIAL_TIMEOUT", "2s")
	require.Equal(t, 2_000_000_000, int(config.GetDurEnv("MTCORE_DIAL_TIMEOUT", 0)))
	require.Equal(t, 5_000_000_000, int(config.GetDurEnv("MTCORE_UNSET_TIMEOUT", 5_000_000_000)))
}
