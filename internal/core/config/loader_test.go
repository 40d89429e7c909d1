package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_EnvSubstitution(t *testing.T) {
	// Setup env var
	os.Setenv("TEST_REDIS_URL", "redis://localhost:6380/1")
	defer os.Unsetenv("TEST_REDIS_URL")

	// Create temp config file
	configContent := `
redis:
  url: ${TEST_REDIS_URL}
`
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	// Load config
	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.URL != "redis://localhost:6380/1" {
		t.Errorf("Expected URL redis://localhost:6380/1, got %s", cfg.Redis.URL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte("server:\n  port: 9090\n")); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Engine.MaxQueueSize != 1000 {
		t.Errorf("Expected default max queue size 1000, got %d", cfg.Engine.MaxQueueSize)
	}
	if cfg.Engine.PollInterval != 2*time.Second {
		t.Errorf("Expected default poll interval 2s, got %v", cfg.Engine.PollInterval)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("Expected default failure threshold 5, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Engine.Strategy != "balanced" {
		t.Errorf("Expected default strategy balanced, got %s", cfg.Engine.Strategy)
	}
}
