package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONDUCTOR_DATA_HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8855, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Engine.ContextWindow)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, "medium", cfg.Engine.RiskThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Engine.TicketTTL)
	assert.NotEmpty(t, cfg.Storage.DBPath)
	assert.NotEmpty(t, cfg.Index.Path)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("CONDUCTOR_DATA_HOME", t.TempDir())

	configPath := filepath.Join(t.TempDir(), "conductor.yml")
	content := []byte(`
server:
  port: 9100
engine:
  max_attempts: 5
  risk_threshold: high
completion:
  model: gpt-4o
`)
	require.NoError(t, os.WriteFile(configPath, content, 0644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, "high", cfg.Engine.RiskThreshold)
	assert.Equal(t, "gpt-4o", cfg.Completion.Model)
	// untouched keys keep their defaults
	assert.Equal(t, 50, cfg.Engine.ContextWindow)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("CONDUCTOR_DATA_HOME", t.TempDir())
	t.Setenv("CONDUCTOR_SERVER_PORT", "9200")
	t.Setenv("CONDUCTOR_ENGINE_RISK_THRESHOLD", "low")

	configPath := filepath.Join(t.TempDir(), "conductor.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 9100\n"), 0644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "low", cfg.Engine.RiskThreshold)
}

func TestLoadConfigMissingFileIsFine(t *testing.T) {
	t.Setenv("CONDUCTOR_DATA_HOME", t.TempDir())

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	assert.Equal(t, 8855, cfg.Server.Port)
}

func TestGetConductorDataHomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONDUCTOR_DATA_HOME", dir)

	home, err := GetConductorDataHome()
	require.NoError(t, err)
	assert.Equal(t, dir, home)
}
