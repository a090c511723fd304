package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSettingString(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkerSetting
		want string
	}{
		{"auto mode", WorkerSetting{Mode: WorkersAuto}, "auto"},
		{"fixed mode 4", WorkerSetting{Mode: WorkersFixed, Value: 4}, "4"},
		{"fixed mode 0", WorkerSetting{Mode: WorkersFixed, Value: 0}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ws.String()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HYDRAREQ_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "5s", cfg.Engine.DefaultTotalTimeout)
	assert.Equal(t, 3, cfg.Engine.DefaultUDPRetries)
	assert.Equal(t, WorkersAuto, cfg.Dispatch.Workers.Mode)
	assert.Equal(t, 4096, cfg.Dispatch.UDPBufferSize)
	assert.Empty(t, cfg.Dispatch.Blackhole)
}

func TestLoadFromFile(t *testing.T) {
	content := `
engine:
  default_total_timeout: "10s"
  default_udp_retries: 2

dispatch:
  workers: "4"
  default_dscp: 46
  blackhole:
    - "10.0.0.0/8"

logging:
  level: "DEBUG"
  structured: true
  structured_format: "keyvalue"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10s", cfg.Engine.DefaultTotalTimeout)
	assert.Equal(t, 2, cfg.Engine.DefaultUDPRetries)
	assert.Equal(t, WorkersFixed, cfg.Dispatch.Workers.Mode)
	assert.Equal(t, 4, cfg.Dispatch.Workers.Value)
	assert.Equal(t, 46, cfg.Dispatch.DefaultDSCP)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Dispatch.Blackhole)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "keyvalue", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  default_udp_retries: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidDSCP(t *testing.T) {
	content := `
dispatch:
  default_dscp: 100
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidWorkers(t *testing.T) {
	content := `
dispatch:
  workers: "invalid"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// With Viper, invalid workers gracefully defaults to "auto"
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, WorkersAuto, cfg.Dispatch.Workers.Mode)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HYDRAREQ_ENGINE_DEFAULT_UDP_RETRIES", "5")
	t.Setenv("HYDRAREQ_DISPATCH_WORKERS", "8")
	t.Setenv("HYDRAREQ_DISPATCH_BLACKHOLE", "10.0.0.0/8, 192.168.0.0/16")
	t.Setenv("HYDRAREQ_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.DefaultUDPRetries)
	assert.Equal(t, WorkersFixed, cfg.Dispatch.Workers.Mode)
	assert.Equal(t, 8, cfg.Dispatch.Workers.Value)
	assert.Len(t, cfg.Dispatch.Blackhole, 2)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}
