package config

// DefaultConfig returns the default configuration with built-in protocols.
// The wallet pool is intentionally empty: Validate forces callers to supply
// real addresses rather than running against a silent default.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		Network:     "ethereum",
		HistoryPath: ".chainsched/history.db",
		Scheduler: SchedulerConfig{
			MaxRetries:           3,
			RetryDelay:           30,
			TaskTimeout:          300,
			MaxConcurrentTasks:   4,
			EmergencyStopGasGwei: 150,
			MinDelay:             60,
			MaxDelay:             600,
		},
		Protocols: map[string]ProtocolConfig{
			"scroll": {
				Enabled:            true,
				DailyActivityRange: Range{Min: 2, Max: 5},
				Operations: map[string]OperationConfig{
					"bridge":      {Enabled: true, Weight: 3},
					"swap_tokens": {Enabled: true, Weight: 5},
					"lend":        {Enabled: true, Weight: 2},
				},
			},
			"zksync": {
				Enabled:            true,
				DailyActivityRange: Range{Min: 1, Max: 4},
				Operations: map[string]OperationConfig{
					"bridge":      {Enabled: true, Weight: 2},
					"swap_tokens": {Enabled: true, Weight: 4},
					"mint_nft":    {Enabled: false, Weight: 1},
				},
			},
		},
	}
}
