package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	assert.Equal(t, "error", LogLevel())
	assert.False(t, LogFileEnabled())
	assert.Equal(t, "main", DefaultBranch())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".templedb", "templedb.db"), DBPath())
}

func TestEnvOverrides(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TEMPLEDB_DB", "/tmp/custom.db")
	t.Setenv("TEMPLEDB_LOG_LEVEL", "debug")
	t.Setenv("TEMPLEDB_LOG_FILE", "true")

	assert.Equal(t, "/tmp/custom.db", DBPath())
	assert.Equal(t, "debug", LogLevel())
	assert.True(t, LogFileEnabled())
}

func TestConfigFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "templedb")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	yaml := "db: /data/projects.db\nauthor: ada\ndefault-branch: trunk\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	assert.Equal(t, "/data/projects.db", DBPath())
	assert.Equal(t, "ada", Author())
	assert.Equal(t, "trunk", DefaultBranch())
}

func TestEnvBeatsConfigFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "templedb")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("log-level: warn\n"), 0o600))
	t.Setenv("TEMPLEDB_LOG_LEVEL", "info")

	assert.Equal(t, "info", LogLevel())
}

func TestSetWinsOverEnv(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TEMPLEDB_LOG_LEVEL", "warn")

	Set(KeyLogLevel, "debug")
	assert.Equal(t, "debug", LogLevel())
}

func TestAuthorFallsBackToUser(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("USER", "grace")

	assert.Equal(t, "grace", Author())
}
