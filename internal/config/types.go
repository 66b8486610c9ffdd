package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Range is an inclusive integer interval.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// OperationConfig describes one protocol operation available to the
// schedule generator.
type OperationConfig struct {
	Enabled bool `yaml:"enabled"`
	Weight  int  `yaml:"weight"` // Relative sampling weight; normalized at draw time
}

// ProtocolConfig describes one protocol's scheduling behavior.
type ProtocolConfig struct {
	Enabled            bool                       `yaml:"enabled"`
	DailyActivityRange Range                      `yaml:"daily_activity_range"` // Tasks per wallet per day
	Operations         map[string]OperationConfig `yaml:"operations"`
}

// SchedulerConfig bounds the execution engine and admission gate.
// Delays and timeouts are in seconds.
type SchedulerConfig struct {
	MaxRetries           int     `yaml:"max_retries"`
	RetryDelay           int     `yaml:"retry_delay"`
	TaskTimeout          int     `yaml:"task_timeout"`
	MaxConcurrentTasks   int     `yaml:"max_concurrent_tasks"`
	EmergencyStopGasGwei float64 `yaml:"emergency_stop_gas_gwei"`
	MinDelay             int     `yaml:"min_delay"`
	MaxDelay             int     `yaml:"max_delay"`
}

// Config is the top-level configuration.
type Config struct {
	LogLevel    string                    `yaml:"log_level"`
	Network     string                    `yaml:"network"`
	Wallets     []string                  `yaml:"wallets"`
	HistoryPath string                    `yaml:"history_path"`
	Scheduler   SchedulerConfig           `yaml:"scheduler"`
	Protocols   map[string]ProtocolConfig `yaml:"protocols"`
}

// GasThreshold returns the emergency stop threshold as a decimal.
func (c *Config) GasThreshold() decimal.Decimal {
	return decimal.NewFromFloat(c.Scheduler.EmergencyStopGasGwei)
}

// Validate enforces the fatal-at-startup configuration rules. Bad ranges,
// negative weights, or an empty wallet pool are errors, never silently
// defaulted.
func (c *Config) Validate() error {
	if len(c.Wallets) == 0 {
		return fmt.Errorf("wallet pool is empty")
	}
	seen := make(map[string]bool, len(c.Wallets))
	for _, wallet := range c.Wallets {
		if wallet == "" {
			return fmt.Errorf("wallet pool contains an empty address")
		}
		if seen[wallet] {
			return fmt.Errorf("wallet pool contains duplicate address %q", wallet)
		}
		seen[wallet] = true
	}

	s := c.Scheduler
	if s.MaxRetries < 0 {
		return fmt.Errorf("scheduler.max_retries must be >= 0, got %d", s.MaxRetries)
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("scheduler.retry_delay must be >= 0, got %d", s.RetryDelay)
	}
	if s.TaskTimeout <= 0 {
		return fmt.Errorf("scheduler.task_timeout must be > 0, got %d", s.TaskTimeout)
	}
	if s.MaxConcurrentTasks < 1 {
		return fmt.Errorf("scheduler.max_concurrent_tasks must be >= 1, got %d", s.MaxConcurrentTasks)
	}
	if s.EmergencyStopGasGwei <= 0 {
		return fmt.Errorf("scheduler.emergency_stop_gas_gwei must be > 0, got %v", s.EmergencyStopGasGwei)
	}
	if s.MinDelay < 0 || s.MaxDelay < s.MinDelay {
		return fmt.Errorf("scheduler delay range [%d, %d] is invalid", s.MinDelay, s.MaxDelay)
	}

	for name, proto := range c.Protocols {
		if err := validateProtocol(name, proto); err != nil {
			return err
		}
	}

	return nil
}

func validateProtocol(name string, proto ProtocolConfig) error {
	r := proto.DailyActivityRange
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("protocol %q daily_activity_range [%d, %d] is invalid", name, r.Min, r.Max)
	}

	enabledOps := 0
	for opName, op := range proto.Operations {
		if op.Weight < 0 {
			return fmt.Errorf("protocol %q operation %q has negative weight %d", name, opName, op.Weight)
		}
		if op.Enabled && op.Weight > 0 {
			enabledOps++
		}
	}

	if proto.Enabled && enabledOps == 0 {
		return fmt.Errorf("protocol %q is enabled but has no enabled operations with positive weight", name)
	}

	return nil
}
