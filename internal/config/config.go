// Package config resolves perflens runtime settings from defaults, an
// optional YAML file, environment variables and CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "perflens.yml"

	envTimeout       = "PERFLENS_TIMEOUT"
	envCPUDuration   = "PERFLENS_CPU_DURATION"
	envCPUFrequency  = "PERFLENS_CPU_FREQUENCY"
	envOutputDir     = "PERFLENS_OUTPUT_DIR"
	envFlameGraphDir = "PERFLENS_FLAMEGRAPH_DIR"
)

// Loader merges configuration coming from files, environment variables, and CLI flags.
type Loader struct {
	ConfigPath string
}

// RuntimeConfig contains the fully merged settings.
type RuntimeConfig struct {
	Timeout       time.Duration // memory, cache and syscall analyses
	ThreadTimeout time.Duration // helgrind is much slower than the other tools
	CPUDuration   time.Duration
	CPUFrequency  int
	OutputDir     string
	FlameGraphDir string
	Tools         map[string]string // executable name -> explicit path
}

// Overrides captures values coming from the config file, env vars or CLI flags.
// Zero values mean "not set".
type Overrides struct {
	Timeout       time.Duration
	ThreadTimeout time.Duration
	CPUDuration   time.Duration
	CPUFrequency  int
	OutputDir     string
	FlameGraphDir string
	Tools         map[string]string
}

// DefaultRuntimeConfig returns the baseline configuration when no overrides are provided.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Timeout:       300 * time.Second,
		ThreadTimeout: 600 * time.Second,
		CPUDuration:   30 * time.Second,
		CPUFrequency:  99,
		OutputDir:     ".",
		Tools:         map[string]string{},
	}
}

// Load resolves the final runtime configuration. A missing file at the
// default path is not an error; a missing explicit path is.
func (l Loader) Load(override Overrides) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	path := l.ConfigPath
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	switch {
	case fileExists(path):
		fileOv, err := loadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
		cfg.apply(fileOv)
	case explicit:
		return cfg, fmt.Errorf("config file not found: %s", path)
	}

	envOv, err := overridesFromEnv()
	if err != nil {
		return cfg, err
	}
	cfg.apply(envOv)
	cfg.apply(override)

	return cfg, nil
}

// Validate rejects settings no analysis could run with.
func (c RuntimeConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %s)", c.Timeout)
	}
	if c.ThreadTimeout <= 0 {
		return fmt.Errorf("thread timeout must be positive (got %s)", c.ThreadTimeout)
	}
	if c.CPUDuration <= 0 {
		return fmt.Errorf("cpu duration must be positive (got %s)", c.CPUDuration)
	}
	if c.CPUFrequency < 1 {
		return fmt.Errorf("cpu frequency must be at least 1 Hz (got %d)", c.CPUFrequency)
	}
	if c.OutputDir == "" {
		return errors.New("output directory cannot be empty")
	}
	return nil
}

// ToolPaths returns the explicit executable paths for the locator. A
// configured FlameGraph directory pins flamegraph.pl unless tools already does.
func (c RuntimeConfig) ToolPaths() map[string]string {
	paths := make(map[string]string, len(c.Tools)+1)
	for k, v := range c.Tools {
		paths[k] = v
	}
	if c.FlameGraphDir != "" {
		if _, ok := paths["flamegraph.pl"]; !ok {
			paths["flamegraph.pl"] = filepath.Join(c.FlameGraphDir, "flamegraph.pl")
		}
	}
	return paths
}

func (c *RuntimeConfig) apply(src Overrides) {
	if src.Timeout > 0 {
		c.Timeout = src.Timeout
	}
	if src.ThreadTimeout > 0 {
		c.ThreadTimeout = src.ThreadTimeout
	}
	if src.CPUDuration > 0 {
		c.CPUDuration = src.CPUDuration
	}
	if src.CPUFrequency > 0 {
		c.CPUFrequency = src.CPUFrequency
	}
	if src.OutputDir != "" {
		c.OutputDir = src.OutputDir
	}
	if src.FlameGraphDir != "" {
		c.FlameGraphDir = src.FlameGraphDir
	}
	for name, path := range src.Tools {
		if strings.TrimSpace(path) != "" {
			c.Tools[name] = path
		}
	}
}

func loadFromFile(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, err
	}

	type cpuSection struct {
		Duration  seconds `yaml:"duration"`
		Frequency int     `yaml:"frequency"`
	}
	type rawConfig struct {
		Timeout       seconds           `yaml:"timeout"`
		ThreadTimeout seconds           `yaml:"threadTimeout"`
		CPU           cpuSection        `yaml:"cpu"`
		OutputDir     string            `yaml:"outputDir"`
		FlameGraphDir string            `yaml:"flamegraphDir"`
		Tools         map[string]string `yaml:"tools"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Overrides{}, err
	}

	return Overrides{
		Timeout:       time.Duration(raw.Timeout),
		ThreadTimeout: time.Duration(raw.ThreadTimeout),
		CPUDuration:   time.Duration(raw.CPU.Duration),
		CPUFrequency:  raw.CPU.Frequency,
		OutputDir:     raw.OutputDir,
		FlameGraphDir: raw.FlameGraphDir,
		Tools:         raw.Tools,
	}, nil
}

func overridesFromEnv() (Overrides, error) {
	ov := Overrides{}

	if value := os.Getenv(envTimeout); value != "" {
		d, err := ParseDuration(value)
		if err != nil {
			return ov, fmt.Errorf("%s: %w", envTimeout, err)
		}
		ov.Timeout = d
	}

	if value := os.Getenv(envCPUDuration); value != "" {
		d, err := ParseDuration(value)
		if err != nil {
			return ov, fmt.Errorf("%s: %w", envCPUDuration, err)
		}
		ov.CPUDuration = d
	}

	if value := os.Getenv(envCPUFrequency); value != "" {
		hz, err := strconv.Atoi(value)
		if err != nil {
			return ov, fmt.Errorf("%s: %w", envCPUFrequency, err)
		}
		ov.CPUFrequency = hz
	}

	if value := os.Getenv(envOutputDir); value != "" {
		ov.OutputDir = value
	}

	if value := os.Getenv(envFlameGraphDir); value != "" {
		ov.FlameGraphDir = value
	}

	return ov, nil
}

// ParseDuration accepts a Go duration ("90s", "5m") or a bare number of seconds.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// seconds enables YAML durations written either as "90s" or as 90.
type seconds time.Duration

func (s *seconds) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported YAML type for duration")
	}
	d, err := ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*s = seconds(d)
	return nil
}
