package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Loader{}.Load(Overrides{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 300*time.Second, cfg.Timeout)
	assert.Equal(t, 600*time.Second, cfg.ThreadTimeout)
	assert.Equal(t, 30*time.Second, cfg.CPUDuration)
	assert.Equal(t, 99, cfg.CPUFrequency)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Empty(t, cfg.ToolPaths())
}

func TestLoaderLoadWithFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "perflens.yml")
	body := []byte(`timeout: 120
threadTimeout: 15m
cpu:
  duration: 10s
  frequency: 499
outputDir: out
tools:
  perf: /opt/perf/bin/perf
`)
	require.NoError(t, os.WriteFile(configPath, body, 0o600))

	t.Setenv(envCPUFrequency, "199")
	t.Setenv(envOutputDir, "from-env")

	cfg, err := Loader{ConfigPath: configPath}.Load(Overrides{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.ThreadTimeout)
	assert.Equal(t, 10*time.Second, cfg.CPUDuration)
	assert.Equal(t, 199, cfg.CPUFrequency, "env overrides file")
	assert.Equal(t, "from-env", cfg.OutputDir)
	assert.Equal(t, "/opt/perf/bin/perf", cfg.ToolPaths()["perf"])
}

func TestFlagsOverrideEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(envTimeout, "45s")
	t.Setenv(envCPUDuration, "5")

	cfg, err := Loader{}.Load(Overrides{Timeout: 2 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.CPUDuration)
}

func TestExplicitConfigMustExist(t *testing.T) {
	_, err := Loader{ConfigPath: filepath.Join(t.TempDir(), "missing.yml")}.Load(Overrides{})
	require.Error(t, err)
}

func TestInvalidEnvDuration(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(envTimeout, "soon")

	_, err := Loader{}.Load(Overrides{})
	require.ErrorContains(t, err, envTimeout)
}

func TestFlameGraphDirPinsScript(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(envFlameGraphDir, "/srv/FlameGraph")

	cfg, err := Loader{}.Load(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "/srv/FlameGraph/flamegraph.pl", cfg.ToolPaths()["flamegraph.pl"])

	cfg.Tools["flamegraph.pl"] = "/custom/flamegraph.pl"
	assert.Equal(t, "/custom/flamegraph.pl", cfg.ToolPaths()["flamegraph.pl"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RuntimeConfig)
	}{
		{"zero timeout", func(c *RuntimeConfig) { c.Timeout = 0 }},
		{"negative thread timeout", func(c *RuntimeConfig) { c.ThreadTimeout = -time.Second }},
		{"zero duration", func(c *RuntimeConfig) { c.CPUDuration = 0 }},
		{"zero frequency", func(c *RuntimeConfig) { c.CPUFrequency = 0 }},
		{"empty output dir", func(c *RuntimeConfig) { c.OutputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRuntimeConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30", 30 * time.Second},
		{" 90s ", 90 * time.Second},
		{"1m30s", 90 * time.Second},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDuration("abc")
	assert.Error(t, err)
}

// chdir moves into dir for the duration of the test so the default config
// path does not pick up a stray perflens.yml.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
