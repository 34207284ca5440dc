package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termsync/core/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "firestore", cfg.Store.Backend)
	assert.Equal(t, 100, cfg.Store.PageSize)
	assert.Equal(t, "Terminology", cfg.Store.Collection)
	assert.Equal(t, "(default)", cfg.Store.Firestore.Database)
	assert.Equal(t, 10, cfg.Deletion.BatchSize)
	assert.Equal(t, 300*time.Second, cfg.Deletion.TimeBudget)
	assert.Equal(t, 60*time.Second, cfg.Deletion.SubTimeBudget)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 900, cfg.Redis.LockTTLSeconds)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "badger")
	t.Setenv("STORE_FIRESTORE_PROJECT_ID", "demo")
	t.Setenv("DELETION_TIME_BUDGET", "45s")
	t.Setenv("DELETION_BATCH_SIZE", "25")

	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, "demo", cfg.Store.Firestore.ProjectID)
	assert.Equal(t, 45*time.Second, cfg.Deletion.TimeBudget)
	assert.Equal(t, 25, cfg.Deletion.BatchSize)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\nSERVER_API_KEY=secret\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("SERVER_API_KEY")
	})

	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "secret", cfg.Server.ApiKey)
}
