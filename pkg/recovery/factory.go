// SPDX-License-Identifier: Apache-2.0
package recovery

import (
	"context"
	"time"

	"github.com/jllopis/aegis/pkg/resilience"
)

// System bundles a manager with the default policy of a preset. Run applies
// that policy; Execute on the embedded manager takes an explicit one.
type System struct {
	*Manager

	// Policy is the preset's default execution policy.
	Policy Policy
}

// Run executes op under the system's default policy.
func (s *System) Run(ctx context.Context, operationID string, op resilience.Operation) (interface{}, error) {
	return s.Execute(ctx, operationID, op, s.Policy)
}

// NewBasic returns a system with library defaults: exponential backoff with
// jitter, no circuit breaking, no checkpoint rollback.
func NewBasic(opts ...Option) *System {
	return &System{
		Manager: NewManager(opts...),
		Policy:  Policy{},
	}
}

// NewForDevelopment returns a lenient system for local work: more attempts,
// short delays, a breaker that takes sustained failure to trip.
func NewForDevelopment(opts ...Option) *System {
	retry := resilience.DefaultRetryConfig().
		WithMaxAttempts(5).
		WithBaseDelay(50 * time.Millisecond).
		WithMaxDelay(2 * time.Second)
	breaker := resilience.BreakerConfig{
		FailureThreshold:  10,
		RecoveryTimeout:   5 * time.Second,
		MonitoringWindow:  30 * time.Second,
		MinimumThroughput: 5,
	}

	opts = append([]Option{WithRetryDefaults(retry), WithBreakerDefaults(breaker)}, opts...)
	return &System{
		Manager: NewManager(opts...),
		Policy:  Policy{Breaker: &breaker},
	}
}

// NewForProduction returns a system tuned for production traffic: patient
// exponential backoff, circuit breaking and checkpoint rollback enabled.
func NewForProduction(opts ...Option) *System {
	retry := resilience.DefaultRetryConfig().
		WithMaxAttempts(5).
		WithBaseDelay(200 * time.Millisecond).
		WithMaxDelay(30 * time.Second)
	breaker := resilience.BreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		MonitoringWindow:  60 * time.Second,
		MinimumThroughput: 5,
	}

	opts = append([]Option{WithRetryDefaults(retry), WithBreakerDefaults(breaker)}, opts...)
	return &System{
		Manager: NewManager(opts...),
		Policy:  Policy{Breaker: &breaker, Checkpoint: true},
	}
}

// NewForTesting returns a system whose timings are compressed so breaker
// transitions and window rotations happen within a test's patience.
func NewForTesting(opts ...Option) *System {
	retry := resilience.DefaultRetryConfig().
		WithStrategy(resilience.StrategyFixed).
		WithMaxAttempts(2).
		WithBaseDelay(time.Millisecond).
		WithJitter(false)
	breaker := resilience.BreakerConfig{
		FailureThreshold:  2,
		RecoveryTimeout:   25 * time.Millisecond,
		MonitoringWindow:  250 * time.Millisecond,
		MinimumThroughput: 1,
	}

	opts = append([]Option{
		WithRetryDefaults(retry),
		WithBreakerDefaults(breaker),
		WithMetricsInterval(25 * time.Millisecond),
	}, opts...)
	return &System{
		Manager: NewManager(opts...),
		Policy:  Policy{Breaker: &breaker, Checkpoint: true},
	}
}
