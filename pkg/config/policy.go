// SPDX-License-Identifier: Apache-2.0
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/aegis/pkg/classify"
	aegiserrors "github.com/jllopis/aegis/pkg/errors"
	"github.com/jllopis/aegis/pkg/recovery"
	"github.com/jllopis/aegis/pkg/resilience"
)

// policyDoc is the YAML shape of a standalone recovery policy. Durations are
// Go duration strings ("200ms", "30s").
type policyDoc struct {
	Retry *struct {
		Strategy    string   `yaml:"strategy"`
		MaxAttempts int      `yaml:"max_attempts"`
		BaseDelay   string   `yaml:"base_delay"`
		MaxDelay    string   `yaml:"max_delay"`
		Jitter      bool     `yaml:"jitter"`
		Retryable   []string `yaml:"retryable"`
	} `yaml:"retry"`
	Breaker *struct {
		Name              string `yaml:"name"`
		FailureThreshold  int    `yaml:"failure_threshold"`
		RecoveryTimeout   string `yaml:"recovery_timeout"`
		MonitoringWindow  string `yaml:"monitoring_window"`
		MinimumThroughput int    `yaml:"minimum_throughput"`
	} `yaml:"breaker"`
	Checkpoint bool `yaml:"checkpoint"`
}

// PolicyFromYAML parses a recovery policy document.
func PolicyFromYAML(data []byte) (recovery.Policy, error) {
	var doc policyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return recovery.Policy{}, aegiserrors.New(aegiserrors.CodeInvalidInput,
			"failed to parse policy document", err)
	}

	policy := recovery.Policy{Checkpoint: doc.Checkpoint}

	if doc.Retry != nil {
		cfg := resilience.DefaultRetryConfig()
		if doc.Retry.Strategy != "" {
			cfg.Strategy = resilience.Strategy(doc.Retry.Strategy)
		}
		if doc.Retry.MaxAttempts > 0 {
			cfg.MaxAttempts = doc.Retry.MaxAttempts
		}
		var err error
		if cfg.BaseDelay, err = policyDuration(doc.Retry.BaseDelay, cfg.BaseDelay); err != nil {
			return recovery.Policy{}, err
		}
		if cfg.MaxDelay, err = policyDuration(doc.Retry.MaxDelay, cfg.MaxDelay); err != nil {
			return recovery.Policy{}, err
		}
		cfg.Jitter = doc.Retry.Jitter
		if len(doc.Retry.Retryable) > 0 {
			cfg.RetryableErrors = nil
			for _, cat := range doc.Retry.Retryable {
				cfg.RetryableErrors = append(cfg.RetryableErrors,
					classify.Category(strings.ToUpper(cat)))
			}
		}
		policy.Retry = &cfg
	}

	if doc.Breaker != nil {
		cfg := resilience.DefaultBreakerConfig(doc.Breaker.Name)
		if doc.Breaker.FailureThreshold > 0 {
			cfg.FailureThreshold = doc.Breaker.FailureThreshold
		}
		if doc.Breaker.MinimumThroughput > 0 {
			cfg.MinimumThroughput = doc.Breaker.MinimumThroughput
		}
		var err error
		if cfg.RecoveryTimeout, err = policyDuration(doc.Breaker.RecoveryTimeout, cfg.RecoveryTimeout); err != nil {
			return recovery.Policy{}, err
		}
		if cfg.MonitoringWindow, err = policyDuration(doc.Breaker.MonitoringWindow, cfg.MonitoringWindow); err != nil {
			return recovery.Policy{}, err
		}
		policy.Breaker = &cfg
	}

	return policy, nil
}

// LoadPolicyFile reads and parses a recovery policy document from disk.
func LoadPolicyFile(path string) (recovery.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recovery.Policy{}, aegiserrors.New(aegiserrors.CodeInvalidInput,
			"failed to read policy file", err).WithContext("path", path)
	}
	return PolicyFromYAML(data)
}

func policyDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, aegiserrors.New(aegiserrors.CodeInvalidInput,
			"invalid duration in policy document", err).WithContext("value", raw)
	}
	return d, nil
}
