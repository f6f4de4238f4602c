package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration for the analyzer: which policies to
// load, where to log, and how the detector plug interface and incremental
// monitor should behave by default.
type Config struct {
	PolicyPaths     []string                  `yaml:"policy_paths"`
	LogDir          string                    `yaml:"log_dir"`
	WatchDebounceMS int                       `yaml:"watch_debounce_ms"`
	RaiseUnhandled  bool                      `yaml:"raise_unhandled"`
	LocalPolicy     bool                      `yaml:"-"`
	DetectorOptions map[string]map[string]any `yaml:"detector_options"`
}

// yamlConfig is the on-disk shape; kept separate from Config so env
// overrides (LocalPolicy) never round-trip through YAML by accident.
type yamlConfig struct {
	PolicyPaths     []string                  `yaml:"policy_paths"`
	LogDir          string                    `yaml:"log_dir"`
	WatchDebounceMS int                       `yaml:"watch_debounce_ms"`
	RaiseUnhandled  bool                      `yaml:"raise_unhandled"`
	DetectorOptions map[string]map[string]any `yaml:"detector_options"`
}

// Load reads a settings YAML file and produces a runtime Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses YAML data and produces a runtime Config, applying
// environment overrides (LOCAL_POLICY=1, per spec.md §6) on top.
func LoadBytes(data []byte) (*Config, error) {
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg := &Config{
		PolicyPaths:     y.PolicyPaths,
		LogDir:          y.LogDir,
		WatchDebounceMS: y.WatchDebounceMS,
		RaiseUnhandled:  y.RaiseUnhandled,
		DetectorOptions: y.DetectorOptions,
	}

	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir()
	}
	cfg.LogDir = expandHome(cfg.LogDir)

	if v, err := strconv.ParseBool(os.Getenv("LOCAL_POLICY")); err == nil {
		cfg.LocalPolicy = v
	}

	return cfg, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfig returns a config with safe defaults for when no config
// file is given: no policies preloaded, violations only ever reported
// (RaiseUnhandled false) since the engine analyzes traces, it doesn't
// gate a live proxy itself.
func DefaultConfig() *Config {
	return &Config{
		LogDir:         expandHome(DefaultLogDir()),
		RaiseUnhandled: false,
	}
}

// MarshalYAML serializes the config for display/export.
func (c *Config) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(yamlConfig{
		PolicyPaths:     c.PolicyPaths,
		LogDir:          c.LogDir,
		WatchDebounceMS: c.WatchDebounceMS,
		RaiseUnhandled:  c.RaiseUnhandled,
		DetectorOptions: c.DetectorOptions,
	})
}
