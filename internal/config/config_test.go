package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "countersmon.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
threshold = 250
output_dir = "/tmp/countersmon"
max_metrics_size = 2048
size_check_interval = "2s"
process_name = "myapp"
instance_env = "WEBSITE_INSTANCE_ID"
log_level = "debug"
history = true
`)

	t.Setenv("COUNTERSMON_CONFIG", configPath)

	cfg, err := config.LoadArgs(nil)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Threshold, "Expected Threshold 250")
	assert.Equal(t, "/tmp/countersmon", cfg.OutputDir)
	assert.Equal(t, int64(2048), cfg.MaxMetricsSize)
	assert.Equal(t, 2*time.Second, cfg.SizeCheckInterval)
	assert.Equal(t, "myapp", cfg.ProcessName)
	assert.Equal(t, "WEBSITE_INSTANCE_ID", cfg.InstanceEnv)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.History)
	assert.Equal(t, filepath.Join("/tmp/countersmon", config.DefaultMetricsFileName), cfg.MetricsFile)
	assert.Equal(t, filepath.Join("/tmp/countersmon", config.DefaultHistoryFileName), cfg.HistoryDB)
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("COUNTERSMON_CONFIG", "")

	cfg, err := config.LoadArgs(nil)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, 100, cfg.Threshold, "Expected default Threshold 100")
	assert.False(t, cfg.Cleanup)
	assert.Equal(t, config.DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, int64(1<<20), cfg.MaxMetricsSize)
	assert.Equal(t, config.DefaultSizeCheckInterval, cfg.SizeCheckInterval)
	assert.Equal(t, config.DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, config.DefaultProcessName, cfg.ProcessName)
	assert.Equal(t, config.DefaultUploadEnv, cfg.UploadEnv)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.History)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestFlagsOverrideFile(t *testing.T) {
	configPath := writeConfig(t, `
threshold = 250
log_level = "warning"
`)
	t.Setenv("COUNTERSMON_CONFIG", configPath)

	cfg, err := config.LoadArgs([]string{"--threshold", "42", "--log-level", "debug", "--cleanup"})
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Threshold)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Cleanup)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `threshold = 250`)
	t.Setenv("COUNTERSMON_CONFIG", configPath)
	t.Setenv("COUNTERSMON_THRESHOLD", "75")

	cfg, err := config.LoadArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Threshold)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)
	t.Setenv("COUNTERSMON_CONFIG", configPath)

	_, err := config.LoadArgs(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)
	t.Setenv("COUNTERSMON_CONFIG", configPath)

	_, err := config.LoadArgs(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_log_level")
}

func TestNegativeThreshold(t *testing.T) {
	t.Setenv("COUNTERSMON_CONFIG", "")

	_, err := config.LoadArgs([]string{"--threshold=-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid threshold value")
}

func TestUnknownFlag(t *testing.T) {
	t.Setenv("COUNTERSMON_CONFIG", "")

	_, err := config.LoadArgs([]string{"--no-such-flag"})
	require.Error(t, err)
}
