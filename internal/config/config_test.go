package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "registryV2", cfg.ProviderID)
	assert.Equal(t, filepath.Join(dir, "data", "regscope"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "cache", "regscope", "secrets.json"), cfg.SecretsFile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.RetryChallenges)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`provider_id: work
data_dir: /tmp/regscope
log_level: " DEBUG "
max_concurrency: 2
request_timeout: 30s
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("REGSCOPE_RETRY_CHALLENGES", "true")
	t.Setenv("REGSCOPE_MAX_CONCURRENCY", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "work", cfg.ProviderID)
	assert.Equal(t, "/tmp/regscope", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.RetryChallenges)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "dotted provider", body: "provider_id: a.b\n"},
		{name: "negative concurrency", body: "max_concurrency: -1\n"},
		{name: "malformed yaml", body: "provider_id: [\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultPathUsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "regscope", "config.yaml"), DefaultPath())
}
