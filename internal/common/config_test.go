package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketbrief.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFilesDefaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 8090, config.Server.Port)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, 20*time.Hour, config.Runs.FreshnessWindowDuration())
	assert.GreaterOrEqual(t, config.Runs.Concurrency, 1)
}

func TestLoadFromFilesOverride(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = 9100

[runs]
symbols = ["CBA.AU", "BHP.AU"]
concurrency = 8
freshness_window = "12h"
`)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, []string{"CBA.AU", "BHP.AU"}, config.Runs.Symbols)
	assert.Equal(t, 8, config.Runs.Concurrency)
	assert.Equal(t, 12*time.Hour, config.Runs.FreshnessWindowDuration())
}

func TestLoadFromFilesLaterFileWins(t *testing.T) {
	first := writeConfigFile(t, "[server]\nport = 9100\n")
	second := writeConfigFile(t, "[server]\nport = 9200\n")

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, 9200, config.Server.Port)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/marketbrief.toml")
	assert.Error(t, err)
}

func TestValidateRejectsBadDuration(t *testing.T) {
	config := NewDefaultConfig()
	config.Runs.JobTimeout = "not-a-duration"

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runs.job_timeout")
}

func TestValidateRejectsJobTimeoutAboveRunTimeout(t *testing.T) {
	config := NewDefaultConfig()
	config.Runs.JobTimeout = "1h"
	config.Runs.RunTimeout = "30m"

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not exceed")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKETBRIEF_SERVER_PORT", "9300")
	t.Setenv("MARKETBRIEF_LOG_LEVEL", "debug")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 9300, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 9400, "0.0.0.0")
	assert.Equal(t, 9400, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9400, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
