// SPDX-License-Identifier: Apache-2.0
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/aegis/pkg/classify"
	"github.com/jllopis/aegis/pkg/resilience"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Recovery.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Recovery.MaxAttempts)
	}
	if cfg.Recovery.BaseDelay != 100*time.Millisecond {
		t.Errorf("expected default base delay 100ms, got %v", cfg.Recovery.BaseDelay)
	}
	if cfg.Journal.Enabled {
		t.Error("journal should be disabled by default")
	}
}

func TestLoadEnv(t *testing.T) {
	os.Setenv("AEGIS_RECOVERY_MAX_ATTEMPTS", "7")
	defer os.Unsetenv("AEGIS_RECOVERY_MAX_ATTEMPTS")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Recovery.MaxAttempts != 7 {
		t.Errorf("expected max attempts 7 from env, got %d", cfg.Recovery.MaxAttempts)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	raw := `
log:
  level: "debug"
  format: "json"
recovery:
  strategy: "fixed"
  max_attempts: 5
  base_delay: "250ms"
  failure_threshold: 2
telemetry:
  enabled: true
  exporter: "otlp"
  otlp_endpoint: "localhost:4317"
`
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log config not loaded: %+v", cfg.Log)
	}
	if cfg.Recovery.Strategy != "fixed" || cfg.Recovery.MaxAttempts != 5 {
		t.Errorf("recovery config not loaded: %+v", cfg.Recovery)
	}
	if cfg.Recovery.BaseDelay != 250*time.Millisecond {
		t.Errorf("expected base delay 250ms, got %v", cfg.Recovery.BaseDelay)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.OTLPEndpoint != "localhost:4317" {
		t.Errorf("telemetry config not loaded: %+v", cfg.Telemetry)
	}
	// File values merge over defaults; untouched keys keep them.
	if cfg.Recovery.RecoveryTimeout != 30*time.Second {
		t.Errorf("expected default recovery timeout 30s, got %v", cfg.Recovery.RecoveryTimeout)
	}
}

func TestRetryConfigConversion(t *testing.T) {
	rc := RecoveryConfig{
		Strategy:    "fixed",
		MaxAttempts: 4,
		BaseDelay:   50 * time.Millisecond,
		Retryable:   []string{"network", "TIMEOUT"},
	}

	cfg := rc.RetryConfig()
	if cfg.Strategy != resilience.StrategyFixed {
		t.Errorf("Strategy = %v, want fixed", cfg.Strategy)
	}
	if cfg.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", cfg.MaxAttempts)
	}
	want := []classify.Category{classify.CategoryNetwork, classify.CategoryTimeout}
	if len(cfg.RetryableErrors) != 2 || cfg.RetryableErrors[0] != want[0] || cfg.RetryableErrors[1] != want[1] {
		t.Errorf("RetryableErrors = %v, want %v", cfg.RetryableErrors, want)
	}
}

func TestBreakerConfigConversion(t *testing.T) {
	rc := RecoveryConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
	}

	cfg := rc.BreakerConfig("api")
	if cfg.Name != "api" {
		t.Errorf("Name = %q, want api", cfg.Name)
	}
	if cfg.FailureThreshold != 2 || cfg.RecoveryTimeout != 10*time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.MonitoringWindow != 60*time.Second {
		t.Errorf("expected default monitoring window 60s, got %v", cfg.MonitoringWindow)
	}
}
