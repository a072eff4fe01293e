// Package config handles Takobot's optional static settings overlay.
//
// Operator secrets and runtime-discovered preferences (preferred
// provider, API keys, ollama host/model) live in the workspace's
// state/inference-settings.json instead, since those are per-workspace
// and frequently rewritten by the running process; this package only
// covers the handful of knobs an operator sets once in a YAML file
// before the core starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// knownProviders is the fixed priority order the inference bridge
// understands; ProviderOrder entries must be drawn from this set.
var knownProviders = map[string]bool{
	"codex":  true,
	"claude": true,
	"gemini": true,
	"pi":     true,
	"ollama": true,
}

// searchPathsFunc is overridden in tests to avoid picking up real
// config files on developer machines.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order. An explicit
// path (from -config) is checked first by FindConfig; this only
// applies when no explicit path is given.
func DefaultSearchPaths() []string {
	paths := []string{"tako.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "takobot", "config.yaml"))
	}
	paths = append(paths, "/etc/takobot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc() and returns the first
// path that exists. A config file is optional: callers that get an
// error back should fall back to Default().
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds the static settings overlay. It is immutable within a
// run; a life-stage transition swaps the active lifestage policy and
// leaves the Config untouched.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Inference InferenceConfig `yaml:"inference"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Update    UpdateConfig    `yaml:"update"`
}

// WorkspaceConfig overrides workspace root discovery. Normally the
// core walks parent directories for a tako.toml sentinel; Path forces
// a specific root instead.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// HeartbeatConfig sets the tick loop's cadence. JitterPct is validated
// but not applied; the heartbeat's jitter is a fixed ±20%.
type HeartbeatConfig struct {
	IntervalSec int `yaml:"interval_sec"`
	JitterPct   int `yaml:"jitter_pct"` // 0-100, applied as +/-
}

// InferenceConfig holds provider-order and timeout settings. They are
// validated here but not read by the inference bridge, which uses its
// fixed PriorityOrder and per-call timeouts.
type InferenceConfig struct {
	ProviderOrder    []string `yaml:"provider_order"`
	TimeoutSec       int      `yaml:"timeout_sec"`
	StreamTimeoutSec int      `yaml:"stream_timeout_sec"`
}

// SensorsConfig controls the default poll cadence for sensors that
// don't set their own interval.
type SensorsConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec"`
}

// UpdateConfig holds the self-update auto-check switch. It is validated
// but not read by the runtime.
type UpdateConfig struct {
	AutoCheck bool `yaml:"auto_check"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully every field is usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so a committed config.yaml can
	// reference e.g. ${TAKO_WORKSPACE} without embedding a path.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Heartbeat.IntervalSec == 0 {
		c.Heartbeat.IntervalSec = 60
	}
	if c.Heartbeat.JitterPct == 0 {
		c.Heartbeat.JitterPct = 20
	}
	if len(c.Inference.ProviderOrder) == 0 {
		c.Inference.ProviderOrder = []string{"codex", "claude", "gemini", "pi", "ollama"}
	}
	if c.Inference.TimeoutSec == 0 {
		c.Inference.TimeoutSec = 60
	}
	if c.Inference.StreamTimeoutSec == 0 {
		c.Inference.StreamTimeoutSec = 120
	}
	if c.Sensors.PollIntervalSec == 0 {
		c.Sensors.PollIntervalSec = 300
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.Heartbeat.IntervalSec < 1 {
		return fmt.Errorf("heartbeat.interval_sec %d must be >= 1", c.Heartbeat.IntervalSec)
	}
	if c.Heartbeat.JitterPct < 0 || c.Heartbeat.JitterPct > 100 {
		return fmt.Errorf("heartbeat.jitter_pct %d out of range (0-100)", c.Heartbeat.JitterPct)
	}
	for _, p := range c.Inference.ProviderOrder {
		if !knownProviders[p] {
			return fmt.Errorf("inference.provider_order: unknown provider %q", p)
		}
	}
	if c.Inference.TimeoutSec < 1 {
		return fmt.Errorf("inference.timeout_sec %d must be >= 1", c.Inference.TimeoutSec)
	}
	if c.Inference.StreamTimeoutSec < c.Inference.TimeoutSec {
		return fmt.Errorf("inference.stream_timeout_sec %d must be >= timeout_sec %d",
			c.Inference.StreamTimeoutSec, c.Inference.TimeoutSec)
	}
	return nil
}

// Default returns a default configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
