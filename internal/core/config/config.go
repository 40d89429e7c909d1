package config

import (
	"time"

	redisclient "github.com/vietddude/docforge/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Engine   EngineConfig       `yaml:"engine"`
	Breaker  BreakerConfig      `yaml:"breaker"`
	Recovery RecoveryConfig     `yaml:"recovery"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port        int     `yaml:"port"`
	SubmitRate  float64 `yaml:"submit_rate"`  // submissions per second, 0 = unlimited
	SubmitBurst int     `yaml:"submit_burst"` // burst allowance for the submit limiter
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// EngineConfig holds queue and scheduler settings.
type EngineConfig struct {
	MaxQueueSize      int           `yaml:"max_queue_size"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"` // upper bound; strategies pick within it
	PollInterval      time.Duration `yaml:"poll_interval"`
	ResourceInterval  time.Duration `yaml:"resource_interval"` // host snapshot refresh
	RetentionPeriod   time.Duration `yaml:"retention_period"`  // terminal jobs older than this are purged
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	DefaultMaxRetries int           `yaml:"default_max_retries"`
	DefaultJobTimeout time.Duration `yaml:"default_job_timeout"` // enforced by handlers, not the queue
	Strategy          string        `yaml:"strategy"`            // conservative, balanced, aggressive
	AutoOptimize      bool          `yaml:"auto_optimize"`       // let the manager switch strategies
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"` // open → half-open after this
	HalfOpenMax      int           `yaml:"half_open_max"`
}

// RecoveryConfig holds recovery chain settings.
type RecoveryConfig struct {
	HistoryLimit        int `yaml:"history_limit"`         // recovery attempts kept per job
	AttemptsPerStrategy int `yaml:"attempts_per_strategy"` // per-job cap for each strategy
}
