// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"sync"
	"time"

	aegiserrors "github.com/jllopis/aegis/pkg/errors"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed means calls pass through and outcomes are recorded.
	StateClosed BreakerState = "closed"

	// StateOpen means calls are rejected without invoking the operation.
	StateOpen BreakerState = "open"

	// StateHalfOpen means exactly one probe call is allowed through to
	// test recovery.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker for logging/metrics.
	Name string

	// FailureThreshold is the number of failures inside MonitoringWindow
	// that trips the breaker.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before probing.
	RecoveryTimeout time.Duration

	// MonitoringWindow is the trailing duration over which failures count.
	MonitoringWindow time.Duration

	// MinimumThroughput is the minimum call count in the window before the
	// threshold can trip, so sparse traffic does not open the breaker.
	MinimumThroughput int
}

// DefaultBreakerConfig returns a sensible default breaker configuration.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:              name,
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		MonitoringWindow:  60 * time.Second,
		MinimumThroughput: 3,
	}
}

type outcome struct {
	at     time.Time
	failed bool
}

// CircuitBreaker gates an operation group, short-circuiting execution while
// the group is considered unhealthy. Failures are counted over a sliding
// monitoring window. Admission and outcome recording run under the mutex;
// the operation itself runs outside it so unrelated callers do not serialize.
type CircuitBreaker struct {
	config BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	window   []outcome
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.MonitoringWindow == 0 {
		config.MonitoringWindow = 60 * time.Second
	}
	if config.MinimumThroughput < 1 {
		config.MinimumThroughput = 1
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs op if the breaker admits the call, recording the outcome.
// While open it returns a CodeCircuitOpen error without invoking op; while
// half-open only a single probe is admitted and concurrent callers are
// rejected the same way.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (interface{}, error) {
	probe, err := cb.admit()
	if err != nil {
		return nil, err
	}

	result, opErr := op(ctx)
	cb.record(probe, opErr != nil)
	if opErr != nil {
		return nil, opErr
	}
	return result, nil
}

// Admit checks whether a call may proceed without running it through
// Execute. The recovery manager admits once per execute and reports the
// terminal outcome after retries. The returned probe flag must be passed to
// Record when the call completes.
func (cb *CircuitBreaker) Admit() (probe bool, err error) {
	return cb.admit()
}

// Record reports the outcome of a call previously admitted with Admit.
func (cb *CircuitBreaker) Record(probe, failed bool) {
	cb.record(probe, failed)
}

func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
		cb.state = StateHalfOpen
		cb.probing = false
		cb.window = nil
	}

	switch cb.state {
	case StateOpen:
		return false, cb.rejection("circuit breaker open")
	case StateHalfOpen:
		if cb.probing {
			return false, cb.rejection("circuit breaker half-open, probe in flight")
		}
		cb.probing = true
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) record(probe, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	if probe {
		cb.probing = false
		if cb.state != StateHalfOpen {
			return
		}
		if failed {
			cb.toOpen(now)
		} else {
			cb.toClosed()
		}
		return
	}

	if cb.state != StateClosed {
		// Outcome of a call admitted before a state change; the window was
		// reset with the transition, so there is nothing to count.
		return
	}

	cb.window = append(cb.window, outcome{at: now, failed: failed})
	cb.prune(now)

	failures := 0
	for _, o := range cb.window {
		if o.failed {
			failures++
		}
	}
	if failures >= cb.config.FailureThreshold && len(cb.window) >= cb.config.MinimumThroughput {
		cb.toOpen(now)
	}
}

// prune drops outcomes older than the monitoring window. Must be called
// under lock.
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.config.MonitoringWindow)
	i := 0
	for i < len(cb.window) && cb.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.window = append(cb.window[:0], cb.window[i:]...)
	}
}

func (cb *CircuitBreaker) toOpen(now time.Time) {
	cb.state = StateOpen
	cb.openedAt = now
	cb.window = nil
	cb.probing = false
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.window = nil
	cb.probing = false
}

func (cb *CircuitBreaker) rejection(msg string) error {
	return aegiserrors.New(aegiserrors.CodeCircuitOpen, msg, nil).
		WithContext("breaker", cb.config.Name).
		WithRecoverable(true)
}

// Name returns the breaker's group name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns the number of calls and failures inside the current
// monitoring window. Read-only, for health snapshots.
func (cb *CircuitBreaker) Counts() (calls, failures int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.prune(time.Now())
	for _, o := range cb.window {
		if o.failed {
			failures++
		}
	}
	return len(cb.window), failures
}

// ForceOpen jumps straight to the open state, bypassing threshold
// accounting. Operator/test escape hatch.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toOpen(time.Now())
}

// Reset manually returns the breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toClosed()
}
