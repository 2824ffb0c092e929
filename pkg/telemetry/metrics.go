// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/aegis/pkg/classify"
)

// RecoveryMetrics publishes recovery outcomes to OTEL for production
// monitoring. A nil *RecoveryMetrics is valid and records nothing, so
// callers can leave telemetry unwired.
type RecoveryMetrics struct {
	// operationCounter tracks terminal operation outcomes by result.
	operationCounter metric.Int64Counter

	// errorCounter tracks classified errors by category and severity.
	errorCounter metric.Int64Counter

	// recoveryCounter tracks recovery actions by action and result.
	recoveryCounter metric.Int64Counter

	// operationDuration tracks terminal operation latency.
	operationDuration metric.Float64Histogram

	// breakerStateGauge tracks circuit breaker state per group
	// (0=open, 1=half-open, 2=closed).
	breakerStateGauge metric.Int64Gauge

	// checkpointGauge tracks the number of live checkpoints.
	checkpointGauge metric.Int64Gauge
}

// NewRecoveryMetrics creates a recovery metrics publisher with OTEL meters.
func NewRecoveryMetrics() (*RecoveryMetrics, error) {
	meter := otel.Meter("aegis/recovery")

	operationCounter, err := meter.Int64Counter(
		"aegis.operations.total",
		metric.WithDescription("Terminal operation outcomes by result"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"aegis.errors.total",
		metric.WithDescription("Classified errors by category and severity"),
	)
	if err != nil {
		return nil, err
	}

	recoveryCounter, err := meter.Int64Counter(
		"aegis.recoveries.total",
		metric.WithDescription("Recovery actions by action and result"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram(
		"aegis.operation.duration",
		metric.WithDescription("Terminal operation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	breakerStateGauge, err := meter.Int64Gauge(
		"aegis.circuitbreaker.state",
		metric.WithDescription("Circuit breaker state per group (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}

	checkpointGauge, err := meter.Int64Gauge(
		"aegis.checkpoints.live",
		metric.WithDescription("Number of live checkpoints"),
	)
	if err != nil {
		return nil, err
	}

	return &RecoveryMetrics{
		operationCounter:  operationCounter,
		errorCounter:      errorCounter,
		recoveryCounter:   recoveryCounter,
		operationDuration: operationDuration,
		breakerStateGauge: breakerStateGauge,
		checkpointGauge:   checkpointGauge,
	}, nil
}

// RecordOperation records a terminal operation outcome.
func (rm *RecoveryMetrics) RecordOperation(ctx context.Context, operationID string, success bool, duration time.Duration) {
	if rm == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operationID),
		attribute.Bool("success", success),
	)
	rm.operationCounter.Add(ctx, 1, attrs)
	rm.operationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordError records a classified error.
func (rm *RecoveryMetrics) RecordError(ctx context.Context, verdict classify.Classification) {
	if rm == nil {
		return
	}
	rm.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", string(verdict.Category)),
			attribute.String("severity", string(verdict.Severity)),
			attribute.Bool("recoverable", verdict.Recoverable),
		),
	)
}

// RecordRecovery records one recovery action.
func (rm *RecoveryMetrics) RecordRecovery(ctx context.Context, action classify.Action, success bool) {
	if rm == nil {
		return
	}
	rm.recoveryCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", string(action)),
			attribute.Bool("success", success),
		),
	)
}

// RecordBreakerState records a circuit breaker state change
// (0=open, 1=half-open, 2=closed).
func (rm *RecoveryMetrics) RecordBreakerState(ctx context.Context, group string, state int64) {
	if rm == nil {
		return
	}
	rm.breakerStateGauge.Record(ctx, state,
		metric.WithAttributes(attribute.String("group", group)),
	)
}

// RecordCheckpointCount records the number of live checkpoints.
func (rm *RecoveryMetrics) RecordCheckpointCount(ctx context.Context, count int64) {
	if rm == nil {
		return
	}
	rm.checkpointGauge.Record(ctx, count)
}
