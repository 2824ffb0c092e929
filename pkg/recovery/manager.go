// SPDX-License-Identifier: Apache-2.0
// Package recovery orchestrates classification, retries, circuit breaking,
// checkpoints and metrics behind a single Execute call. A Manager owns one
// breaker per operation group and one metrics collector; Shutdown releases
// both and is idempotent.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/aegis/pkg/checkpoint"
	"github.com/jllopis/aegis/pkg/classify"
	aegiserrors "github.com/jllopis/aegis/pkg/errors"
	"github.com/jllopis/aegis/pkg/journal"
	"github.com/jllopis/aegis/pkg/metrics"
	"github.com/jllopis/aegis/pkg/resilience"
	"github.com/jllopis/aegis/pkg/telemetry"
)

// Policy selects the recovery behavior for one Execute call.
type Policy struct {
	// Retry overrides the manager's default retry configuration.
	Retry *resilience.RetryConfig

	// Breaker enables circuit breaking for the operation's group. Groups
	// are keyed by Breaker.Name, falling back to the operation id.
	Breaker *resilience.BreakerConfig

	// Checkpoint rolls the operation back to its latest checkpoint when it
	// terminally fails.
	Checkpoint bool

	// Fallback, if set, is consulted after a terminal failure. A successful
	// fallback turns the call into a success for the caller; the primary
	// operation still counts as failed.
	Fallback resilience.FallbackStrategy
}

// Health is a point-in-time liveness snapshot of a manager.
type Health struct {
	Uptime      time.Duration
	Shutdown    bool
	Checkpoints int
	Breakers    map[string]resilience.BreakerState
	Operations  int64
	SuccessRate float64
}

// Manager coordinates the recovery subsystem for a set of operations.
type Manager struct {
	classifier  *classify.Classifier
	retryer     *resilience.Retryer
	checkpoints *checkpoint.Store
	collector   *metrics.Collector

	otelMetrics *telemetry.RecoveryMetrics
	journal     *journal.Store
	logger      *slog.Logger

	defaultRetry    resilience.RetryConfig
	defaultBreaker  resilience.BreakerConfig
	metricsInterval time.Duration

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
	down     bool

	started      time.Time
	shutdownOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithClassifier replaces the built-in classification rules.
func WithClassifier(c *classify.Classifier) Option {
	return func(m *Manager) { m.classifier = c }
}

// WithRetryDefaults sets the retry configuration used when a policy does not
// carry its own.
func WithRetryDefaults(cfg resilience.RetryConfig) Option {
	return func(m *Manager) { m.defaultRetry = cfg }
}

// WithBreakerDefaults sets the breaker configuration used to fill zero fields
// of a policy's breaker config.
func WithBreakerDefaults(cfg resilience.BreakerConfig) Option {
	return func(m *Manager) { m.defaultBreaker = cfg }
}

// WithMetricsInterval sets the rolling-window rotation interval of the
// metrics collector.
func WithMetricsInterval(d time.Duration) Option {
	return func(m *Manager) { m.metricsInterval = d }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTelemetry mirrors recovery outcomes to OpenTelemetry instruments.
func WithTelemetry(rm *telemetry.RecoveryMetrics) Option {
	return func(m *Manager) { m.otelMetrics = rm }
}

// WithJournal writes terminal outcomes to a journal store. The caller owns
// the store's lifecycle; Shutdown does not close it.
func WithJournal(store *journal.Store) Option {
	return func(m *Manager) { m.journal = store }
}

// NewManager creates a manager with built-in classification rules and
// default retry behavior.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		checkpoints:    checkpoint.NewStore(),
		defaultRetry:   resilience.DefaultRetryConfig(),
		defaultBreaker: resilience.DefaultBreakerConfig(""),
		breakers:       make(map[string]*resilience.CircuitBreaker),
		started:        time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.classifier == nil {
		m.classifier = classify.New()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.retryer = resilience.NewRetryer(m.classifier)
	m.collector = metrics.NewCollector(m.metricsInterval)
	return m
}

// scope carries the manager and per-invocation retry context through the
// operation's context so Checkpoint can find them.
type scopeKey struct{}

type scope struct {
	manager *Manager
	rctx    *resilience.RetryContext
}

// Checkpoint snapshots state from inside an operation running under
// Manager.Execute. The snapshot is rolled back automatically on terminal
// failure when the policy asks for it, and discarded on success.
func Checkpoint(ctx context.Context, state interface{}, description string) (checkpoint.Checkpoint, error) {
	sc, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return checkpoint.Checkpoint{}, aegiserrors.New(aegiserrors.CodeInvalidInput,
			"no recovery scope in context", nil)
	}

	cp, err := sc.manager.checkpoints.Create(sc.rctx.OperationID, state, description)
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	sc.rctx.Checkpoints = append(sc.rctx.Checkpoints, cp.ID)
	if sc.manager.otelMetrics != nil {
		sc.manager.otelMetrics.RecordCheckpointCount(ctx, int64(sc.manager.checkpoints.Count()))
	}
	return cp, nil
}

// Execute runs op under the given policy: circuit breaking, classified
// retries, checkpoint rollback and fallback, with every outcome recorded.
// Terminal failures propagate the operation's original error.
func (m *Manager) Execute(ctx context.Context, operationID string, op resilience.Operation, policy Policy) (interface{}, error) {
	m.mu.Lock()
	if m.down {
		m.mu.Unlock()
		return nil, aegiserrors.New(aegiserrors.CodeShutdown, "recovery manager is shut down", nil).
			WithContext("operation_id", operationID)
	}
	m.mu.Unlock()

	start := time.Now()
	breaker := m.breakerFor(operationID, policy)

	var probe bool
	if breaker != nil {
		var admitErr error
		probe, admitErr = breaker.Admit()
		if admitErr != nil {
			m.collector.RecordRecovery(classify.ActionEscalate, false, 0)
			m.collector.RecordOperation(operationID, false, time.Since(start))
			if m.otelMetrics != nil {
				m.otelMetrics.RecordRecovery(ctx, classify.ActionEscalate, false)
				m.otelMetrics.RecordOperation(ctx, operationID, false, time.Since(start))
			}
			m.journalEvent(ctx, journal.Event{
				OperationID: operationID,
				Outcome:     journal.OutcomeRejected,
				Action:      string(classify.ActionEscalate),
				Error:       admitErr.Error(),
			})
			m.logger.Warn("operation rejected by circuit breaker",
				"operation_id", operationID, "breaker", breaker.State())
			return nil, admitErr
		}
	}

	rctx := resilience.NewRetryContext(operationID)
	opCtx := context.WithValue(ctx, scopeKey{}, &scope{manager: m, rctx: rctx})

	cfg := m.defaultRetry
	if policy.Retry != nil {
		cfg = *policy.Retry
	}
	userOnRetry := cfg.OnRetry
	cfg.OnRetry = func(ctx context.Context, rctx *resilience.RetryContext, err error, verdict classify.Classification) {
		m.collector.RecordError(err, verdict)
		m.collector.RecordRecovery(classify.ActionRetry, true, 0)
		if m.otelMetrics != nil {
			m.otelMetrics.RecordError(ctx, verdict)
			m.otelMetrics.RecordRecovery(ctx, classify.ActionRetry, true)
		}
		m.logger.Debug("retrying failed operation",
			"operation_id", rctx.OperationID,
			"attempt", rctx.Attempt,
			"category", verdict.Category,
			"error", err)
		if userOnRetry != nil {
			userOnRetry(ctx, rctx, err, verdict)
		}
	}

	result, err := m.retryer.Execute(opCtx, op, cfg, rctx)
	duration := time.Since(start)

	if breaker != nil {
		breaker.Record(probe, err != nil)
		if m.otelMetrics != nil {
			m.otelMetrics.RecordBreakerState(ctx, breaker.Name(), breakerStateValue(breaker.State()))
		}
	}
	m.collector.RecordOperation(operationID, err == nil, duration)
	if m.otelMetrics != nil {
		m.otelMetrics.RecordOperation(ctx, operationID, err == nil, duration)
	}

	if err == nil {
		m.checkpoints.Remove(rctx.Checkpoints...)
		m.journalEvent(ctx, journal.Event{
			OperationID: operationID,
			Outcome:     journal.OutcomeSuccess,
			Attempts:    rctx.Attempt + 1,
			Duration:    duration,
		})
		return result, nil
	}

	verdict := m.classifier.Classify(err)
	m.collector.RecordError(err, verdict)
	if m.otelMetrics != nil {
		m.otelMetrics.RecordError(ctx, verdict)
	}
	m.logger.Warn("operation terminally failed",
		"operation_id", operationID,
		"attempts", rctx.Attempt+1,
		"category", verdict.Category,
		"action", verdict.Action,
		"error", err)

	if policy.Checkpoint {
		m.rollbackLatest(ctx, rctx)
	}

	m.journalEvent(ctx, journal.Event{
		OperationID: operationID,
		Outcome:     journal.OutcomeFailure,
		Category:    string(verdict.Category),
		Action:      string(verdict.Action),
		Attempts:    rctx.Attempt + 1,
		Duration:    duration,
		Error:       err.Error(),
	})

	if policy.Fallback != nil {
		value, fbErr := policy.Fallback.Execute(ctx, err)
		m.collector.RecordRecovery(classify.ActionFallback, fbErr == nil, time.Since(start)-duration)
		if m.otelMetrics != nil {
			m.otelMetrics.RecordRecovery(ctx, classify.ActionFallback, fbErr == nil)
		}
		if fbErr == nil {
			return value, nil
		}
	}

	return nil, err
}

// rollbackLatest restores the most recent checkpoint taken during this
// invocation, if any.
func (m *Manager) rollbackLatest(ctx context.Context, rctx *resilience.RetryContext) {
	if len(rctx.Checkpoints) == 0 {
		return
	}

	id := rctx.Checkpoints[len(rctx.Checkpoints)-1]
	_, err := m.checkpoints.Rollback(id)
	m.collector.RecordRecovery(classify.ActionRollback, err == nil, 0)
	if m.otelMetrics != nil {
		m.otelMetrics.RecordRecovery(ctx, classify.ActionRollback, err == nil)
	}
	if err != nil {
		m.logger.Error("checkpoint rollback failed",
			"operation_id", rctx.OperationID, "checkpoint_id", id, "error", err)
		return
	}
	m.logger.Info("rolled back to checkpoint",
		"operation_id", rctx.OperationID, "checkpoint_id", id)
}

func (m *Manager) journalEvent(ctx context.Context, ev journal.Event) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Append(ctx, ev); err != nil {
		m.logger.Error("failed to journal recovery event",
			"operation_id", ev.OperationID, "error", err)
	}
}

// breakerStateValue maps a breaker state onto the gauge scale the telemetry
// instrument expects: 0=open, 1=half-open, 2=closed.
func breakerStateValue(state resilience.BreakerState) int64 {
	switch state {
	case resilience.StateOpen:
		return 0
	case resilience.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// breakerFor returns the breaker for the policy's operation group, creating
// it on first use. A policy without a breaker config gets none.
func (m *Manager) breakerFor(operationID string, policy Policy) *resilience.CircuitBreaker {
	if policy.Breaker == nil {
		return nil
	}

	cfg := *policy.Breaker
	if cfg.Name == "" {
		cfg.Name = operationID
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = m.defaultBreaker.FailureThreshold
	}
	if cfg.RecoveryTimeout == 0 {
		cfg.RecoveryTimeout = m.defaultBreaker.RecoveryTimeout
	}
	if cfg.MonitoringWindow == 0 {
		cfg.MonitoringWindow = m.defaultBreaker.MonitoringWindow
	}
	if cfg.MinimumThroughput == 0 {
		cfg.MinimumThroughput = m.defaultBreaker.MinimumThroughput
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[cfg.Name]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(cfg)
	m.breakers[cfg.Name] = cb
	return cb
}

// Breaker returns the breaker for a group, or nil if none exists yet.
func (m *Manager) Breaker(group string) *resilience.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakers[group]
}

// Classifier returns the classifier so callers can register custom rules.
func (m *Manager) Classifier() *classify.Classifier {
	return m.classifier
}

// Checkpoints returns the manager's checkpoint store.
func (m *Manager) Checkpoints() *checkpoint.Store {
	return m.checkpoints
}

// Stats returns the aggregated recovery metrics.
func (m *Manager) Stats() metrics.Snapshot {
	return m.collector.Stats()
}

// Health returns a liveness snapshot.
func (m *Manager) Health() Health {
	m.mu.Lock()
	states := make(map[string]resilience.BreakerState, len(m.breakers))
	for name, cb := range m.breakers {
		states[name] = cb.State()
	}
	down := m.down
	m.mu.Unlock()

	snap := m.collector.Stats()
	return Health{
		Uptime:      time.Since(m.started),
		Shutdown:    down,
		Checkpoints: m.checkpoints.Count(),
		Breakers:    states,
		Operations:  snap.TotalOperations,
		SuccessRate: snap.SuccessRate,
	}
}

// Shutdown stops the metrics collector and clears stored checkpoints.
// Idempotent; Execute calls after shutdown fail with CodeShutdown.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		m.down = true
		m.mu.Unlock()

		m.collector.Destroy()
		m.checkpoints.Clear()
		m.logger.Info("recovery manager shut down")
	})
}
