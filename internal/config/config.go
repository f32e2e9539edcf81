// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database configures the Postgres/JSONB document store.
type Database struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Blob configures the S3-compatible object store.
type Blob struct {
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// AI configures the remote vision decoder.
type AI struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Worker configures the pool of goroutines a worker process runs.
type Worker struct {
	Count        int           `mapstructure:"count"`
	LeaseSeconds time.Duration `mapstructure:"lease_seconds"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// Preprocess configures the normalisation pass run ahead of local scanning.
type Preprocess struct {
	MaxDimension int  `mapstructure:"max_dimension"`
	Grayscale    bool `mapstructure:"grayscale"`
	Denoise      bool `mapstructure:"denoise"`
}

// Dispatcher configures the poll-and-enqueue cycle.
type Dispatcher struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// Review configures the review-resolution surface.
type Review struct {
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// CircuitBreaker configures the breaker wrapping AI decoder calls.
type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

// TracingConfig configures optional OpenTelemetry export.
type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"` // "always", "never", "probabilistic"
	SamplingRate     float64 `mapstructure:"sampling_rate"`
	Insecure         bool    `mapstructure:"insecure"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	MetricsPort         int           `mapstructure:"metrics_port"`
	LogLevel            string        `mapstructure:"log_level"`
	QueueSampleInterval time.Duration `mapstructure:"queue_sample_interval"`
	Tracing             TracingConfig `mapstructure:"tracing"`
}

// Config is the full process configuration, shared across every cmd/*
// binary; each binary only reads the sections it needs.
type Config struct {
	Database       Database            `mapstructure:"database"`
	Blob           Blob                `mapstructure:"blob"`
	AI             AI                  `mapstructure:"ai"`
	Worker         Worker              `mapstructure:"worker"`
	Preprocess     Preprocess          `mapstructure:"preprocess"`
	Dispatcher     Dispatcher          `mapstructure:"dispatcher"`
	Review         Review              `mapstructure:"review"`
	CircuitBreaker CircuitBreaker      `mapstructure:"circuit_breaker"`
	Observability  ObservabilityConfig `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Database: Database{
			URL:             "postgres://localhost:5432/barcode_pipeline?sslmode=disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Blob: Blob{
			Region:        "auto",
			PresignExpiry: 15 * time.Minute,
		},
		AI: AI{
			Model:       "gemini-2.0-flash",
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
		Worker: Worker{
			Count:        4,
			LeaseSeconds: 5 * time.Minute,
			PollInterval: 2 * time.Second,
			BatchSize:    10,
			MaxAttempts:  3,
		},
		Preprocess: Preprocess{
			MaxDimension: 1600,
			Grayscale:    true,
			Denoise:      true,
		},
		Dispatcher: Dispatcher{
			PollInterval: 10 * time.Second,
			BatchSize:    50,
		},
		Review: Review{
			PresignExpiry: 15 * time.Minute,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       10,
		},
		Observability: ObservabilityConfig{
			MetricsPort:         9090,
			LogLevel:            "info",
			QueueSampleInterval: 2 * time.Second,
			Tracing:             TracingConfig{Enabled: false, SamplingStrategy: "probabilistic", SamplingRate: 0.1},
		},
	}
}

// Load reads configuration from a YAML file, applying env-var overrides
// (dots replaced with underscores, e.g. DATABASE_URL for database.url).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("database.url", def.Database.URL)
	v.SetDefault("database.max_open_conns", def.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", def.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", def.Database.ConnMaxLifetime)

	v.SetDefault("blob.bucket", def.Blob.Bucket)
	v.SetDefault("blob.region", def.Blob.Region)
	v.SetDefault("blob.endpoint", def.Blob.Endpoint)
	v.SetDefault("blob.presign_expiry", def.Blob.PresignExpiry)

	v.SetDefault("ai.model", def.AI.Model)
	v.SetDefault("ai.max_attempts", def.AI.MaxAttempts)
	v.SetDefault("ai.base_delay", def.AI.BaseDelay)
	v.SetDefault("ai.max_delay", def.AI.MaxDelay)

	v.SetDefault("worker.count", def.Worker.Count)
	v.SetDefault("worker.lease_seconds", def.Worker.LeaseSeconds)
	v.SetDefault("worker.poll_interval", def.Worker.PollInterval)
	v.SetDefault("worker.batch_size", def.Worker.BatchSize)
	v.SetDefault("worker.max_attempts", def.Worker.MaxAttempts)

	v.SetDefault("preprocess.max_dimension", def.Preprocess.MaxDimension)
	v.SetDefault("preprocess.grayscale", def.Preprocess.Grayscale)
	v.SetDefault("preprocess.denoise", def.Preprocess.Denoise)

	v.SetDefault("dispatcher.poll_interval", def.Dispatcher.PollInterval)
	v.SetDefault("dispatcher.batch_size", def.Dispatcher.BatchSize)

	v.SetDefault("review.presign_expiry", def.Review.PresignExpiry)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.queue_sample_interval", def.Observability.QueueSampleInterval)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)
	v.SetDefault("observability.tracing.sampling_strategy", def.Observability.Tracing.SamplingStrategy)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1")
	}
	if cfg.Worker.LeaseSeconds < time.Second {
		return fmt.Errorf("worker.lease_seconds must be >= 1s")
	}
	if cfg.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be >= 1")
	}
	if cfg.Dispatcher.PollInterval <= 0 {
		return fmt.Errorf("dispatcher.poll_interval must be > 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 || cfg.CircuitBreaker.FailureThreshold > 1 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be in (0, 1]")
	}
	return nil
}
