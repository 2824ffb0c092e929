// SPDX-License-Identifier: Apache-2.0
// Package config loads Aegis configuration from YAML files and the
// environment. Environment variables use the AEGIS_ prefix and override file
// values (AEGIS_RECOVERY_MAX_ATTEMPTS -> recovery.max_attempts).
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/aegis/pkg/classify"
	"github.com/jllopis/aegis/pkg/resilience"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Recovery  RecoveryConfig  `koanf:"recovery"`
	Journal   JournalConfig   `koanf:"journal"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Exporter       string        `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint   string        `koanf:"otlp_endpoint"`
	OTLPInsecure   bool          `koanf:"otlp_insecure"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

type RecoveryConfig struct {
	Strategy    string        `koanf:"strategy"` // fixed, exponential
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	Jitter      bool          `koanf:"jitter"`
	Retryable   []string      `koanf:"retryable"`

	FailureThreshold  int           `koanf:"failure_threshold"`
	RecoveryTimeout   time.Duration `koanf:"recovery_timeout"`
	MonitoringWindow  time.Duration `koanf:"monitoring_window"`
	MinimumThroughput int           `koanf:"minimum_throughput"`

	MetricsInterval time.Duration `koanf:"metrics_interval"`
}

type JournalConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Load reads configuration from the optional file at path, then applies
// AEGIS_* environment overrides on top of the built-in defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.otlp_insecure", true)
	k.Set("telemetry.metric_interval", "30s")

	k.Set("recovery.strategy", "exponential")
	k.Set("recovery.max_attempts", 3)
	k.Set("recovery.base_delay", "100ms")
	k.Set("recovery.max_delay", "10s")
	k.Set("recovery.jitter", true)
	k.Set("recovery.failure_threshold", 5)
	k.Set("recovery.recovery_timeout", "30s")
	k.Set("recovery.monitoring_window", "60s")
	k.Set("recovery.minimum_throughput", 3)
	k.Set("recovery.metrics_interval", "60s")

	k.Set("journal.enabled", false)
	k.Set("journal.path", "aegis-journal.db")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (AEGIS_RECOVERY_MAX_ATTEMPTS -> recovery.max_attempts)
	if err := k.Load(env.Provider("AEGIS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AEGIS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RetryConfig converts the recovery section into a retry configuration.
func (rc RecoveryConfig) RetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if rc.Strategy != "" {
		cfg.Strategy = resilience.Strategy(rc.Strategy)
	}
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		cfg.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		cfg.MaxDelay = rc.MaxDelay
	}
	cfg.Jitter = rc.Jitter
	if len(rc.Retryable) > 0 {
		cfg.RetryableErrors = nil
		for _, cat := range rc.Retryable {
			cfg.RetryableErrors = append(cfg.RetryableErrors,
				classify.Category(strings.ToUpper(cat)))
		}
	}
	return cfg
}

// BreakerConfig converts the recovery section into a breaker configuration
// for the named operation group.
func (rc RecoveryConfig) BreakerConfig(name string) resilience.BreakerConfig {
	cfg := resilience.DefaultBreakerConfig(name)
	if rc.FailureThreshold > 0 {
		cfg.FailureThreshold = rc.FailureThreshold
	}
	if rc.RecoveryTimeout > 0 {
		cfg.RecoveryTimeout = rc.RecoveryTimeout
	}
	if rc.MonitoringWindow > 0 {
		cfg.MonitoringWindow = rc.MonitoringWindow
	}
	if rc.MinimumThroughput > 0 {
		cfg.MinimumThroughput = rc.MinimumThroughput
	}
	return cfg
}
