package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8, cfg.Document.LoadWorkers)
	assert.Equal(t, 30*time.Second, cfg.Document.FileTimeout)
	assert.Equal(t, 10, cfg.Safety.BackupRetention)
	assert.Equal(t, int64(100*1024*1024), cfg.Safety.MaxFileSize)
	assert.Equal(t, 0.10, cfg.Validation.ExpTolerance)
	assert.Equal(t, 1.5, cfg.Validation.BalanceHighRatio)
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GDCORE_BACKUP_RETENTION", "")
	t.Setenv("GDCORE_BACKUP_DIR", "")

	path := filepath.Join(t.TempDir(), "gdcore.yaml")

	cfg := DefaultConfig()
	cfg.Safety.BackupRetention = 3
	cfg.Validation.RuleTimeout = 5 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Safety.BackupRetention)
	assert.Equal(t, 5*time.Second, loaded.Validation.RuleTimeout)
	// Untouched fields keep their defaults.
	assert.Equal(t, 8, loaded.Validation.RuleWorkers)
}

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GDCORE_BACKUP_RETENTION", "")
	loaded, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Safety.BackupRetention, loaded.Safety.BackupRetention)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GDCORE_BACKUP_RETENTION", "7")
	t.Setenv("GDCORE_BACKUP_DIR", "/tmp/gd-backups")
	t.Setenv("GDCORE_DEBUG", "true")

	loaded, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Safety.BackupRetention)
	assert.Equal(t, "/tmp/gd-backups", loaded.Safety.BackupDir)
	assert.True(t, loaded.Logging.Debug)
}

func TestConfig_EnvOverrideIgnoresBadValues(t *testing.T) {
	t.Setenv("GDCORE_BACKUP_RETENTION", "not-a-number")
	loaded, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Safety.BackupRetention)
}
