// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("WORKER_COUNT")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker.Count != 4 {
		t.Fatalf("expected default worker count 4, got %d", cfg.Worker.Count)
	}
	if cfg.Database.URL == "" {
		t.Fatalf("expected default database url")
	}
	if cfg.AI.MaxAttempts != 3 {
		t.Fatalf("expected default ai.max_attempts 3, got %d", cfg.AI.MaxAttempts)
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Worker.Count = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for worker.count < 1")
	}

	cfg = defaultConfig()
	cfg.Dispatcher.PollInterval = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for dispatcher.poll_interval <= 0")
	}

	cfg = defaultConfig()
	cfg.Observability.MetricsPort = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for invalid metrics_port")
	}

	cfg = defaultConfig()
	cfg.CircuitBreaker.FailureThreshold = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for failure_threshold out of range")
	}
}

func TestValidatePassesOnDefaults(t *testing.T) {
	if err := Validate(defaultConfig()); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}
