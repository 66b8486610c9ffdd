package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed YAML is. The merged
// config is validated before being returned.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads a single config file over the defaults.
func LoadFile(path string) (*Config, error) {
	return Load("", path)
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.chainsched/config.yaml
// Project: .chainsched/config.yaml (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".chainsched", "config.yaml")
	projectPath := filepath.Join(".chainsched", "config.yaml")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a YAML config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.LogLevel != "" {
		base.LogLevel = loaded.LogLevel
	}
	if loaded.Network != "" {
		base.Network = loaded.Network
	}
	if len(loaded.Wallets) > 0 {
		base.Wallets = loaded.Wallets
	}
	if loaded.HistoryPath != "" {
		base.HistoryPath = loaded.HistoryPath
	}

	mergeSchedulerConfig(&base.Scheduler, loaded.Scheduler)

	for name, proto := range loaded.Protocols {
		base.Protocols[name] = proto
	}

	return nil
}

// mergeSchedulerConfig overlays non-zero scheduler fields. MaxRetries zero is
// a meaningful value, so it is merged only when the file sets the section at
// all; the other fields treat zero as "unset".
func mergeSchedulerConfig(base *SchedulerConfig, loaded SchedulerConfig) {
	if loaded == (SchedulerConfig{}) {
		return
	}

	base.MaxRetries = loaded.MaxRetries
	if loaded.RetryDelay > 0 {
		base.RetryDelay = loaded.RetryDelay
	}
	if loaded.TaskTimeout > 0 {
		base.TaskTimeout = loaded.TaskTimeout
	}
	if loaded.MaxConcurrentTasks > 0 {
		base.MaxConcurrentTasks = loaded.MaxConcurrentTasks
	}
	if loaded.EmergencyStopGasGwei > 0 {
		base.EmergencyStopGasGwei = loaded.EmergencyStopGasGwei
	}
	if loaded.MinDelay > 0 {
		base.MinDelay = loaded.MinDelay
	}
	if loaded.MaxDelay > 0 {
		base.MaxDelay = loaded.MaxDelay
	}
}
