package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("SNAPFS_CONFIG_DIR", t.TempDir())

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "error", s.Logging)
	assert.Equal(t, "snapfs", s.Owner)
	assert.Equal(t, uint16(3), s.Replication)
	assert.Equal(t, int64(64*1024*1024), s.BlockSize)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Setenv("SNAPFS_CONFIG_DIR", t.TempDir())

	s := &Settings{Logging: "debug", Owner: "alice", Replication: 2, BlockSize: 4096}
	require.NoError(t, s.Save())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", loaded.Logging)
	assert.Equal(t, "alice", loaded.Owner)
	assert.Equal(t, uint16(2), loaded.Replication)
	assert.Equal(t, int64(4096), loaded.BlockSize)
	// unset fields fall back to defaults
	assert.Equal(t, "supergroup", loaded.Group)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SNAPFS_CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte("logging: [broken"), 0600))

	_, err := Load()
	assert.Error(t, err)
}

func TestConfigDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SNAPFS_CONFIG_DIR", dir)
	assert.Equal(t, dir, ConfigDir())
	assert.Equal(t, filepath.Join(dir, "settings.yaml"), SettingsPath())
}
