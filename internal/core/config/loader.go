package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied, for embedding use.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SubmitBurst == 0 {
		cfg.Server.SubmitBurst = 20
	}

	if cfg.Engine.MaxQueueSize == 0 {
		cfg.Engine.MaxQueueSize = 1000
	}
	if cfg.Engine.MaxConcurrentJobs == 0 {
		cfg.Engine.MaxConcurrentJobs = 8
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = 2 * time.Second
	}
	if cfg.Engine.ResourceInterval == 0 {
		cfg.Engine.ResourceInterval = 30 * time.Second
	}
	if cfg.Engine.RetentionPeriod == 0 {
		cfg.Engine.RetentionPeriod = 24 * time.Hour
	}
	if cfg.Engine.CleanupInterval == 0 {
		cfg.Engine.CleanupInterval = 10 * time.Minute
	}
	if cfg.Engine.DefaultMaxRetries == 0 {
		cfg.Engine.DefaultMaxRetries = 3
	}
	if cfg.Engine.DefaultJobTimeout == 0 {
		cfg.Engine.DefaultJobTimeout = 5 * time.Minute
	}
	if cfg.Engine.Strategy == "" {
		cfg.Engine.Strategy = "balanced"
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.Timeout == 0 {
		cfg.Breaker.Timeout = 60 * time.Second
	}
	if cfg.Breaker.HalfOpenMax == 0 {
		cfg.Breaker.HalfOpenMax = 3
	}

	if cfg.Recovery.HistoryLimit == 0 {
		cfg.Recovery.HistoryLimit = 20
	}
	if cfg.Recovery.AttemptsPerStrategy == 0 {
		cfg.Recovery.AttemptsPerStrategy = 3
	}
}
