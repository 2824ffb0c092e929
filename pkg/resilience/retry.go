// SPDX-License-Identifier: Apache-2.0
// Package resilience provides the retry and circuit breaker engines for
// Aegis. Classification of failures is delegated to pkg/classify.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/jllopis/aegis/pkg/classify"
	aegiserrors "github.com/jllopis/aegis/pkg/errors"
)

// Strategy selects how retry delays grow between attempts.
type Strategy string

const (
	// StrategyFixed waits BaseDelay between every attempt.
	StrategyFixed Strategy = "fixed"

	// StrategyExponential multiplies the delay by Multiplier each attempt,
	// capped at MaxDelay.
	StrategyExponential Strategy = "exponential"
)

// Operation is a fallible unit of work executed under a recovery policy.
type Operation func(ctx context.Context) (interface{}, error)

// RetryConfig controls retry behavior. It is immutable per call; the With*
// helpers return modified copies.
type RetryConfig struct {
	// Strategy selects fixed or exponential backoff.
	Strategy Strategy

	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// BaseDelay is the initial backoff delay.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// Jitter adds a uniform perturbation in [0, delay/2) to each backoff
	// so concurrent retries do not synchronize into bursts.
	Jitter bool

	// RetryableErrors lists the categories worth retrying. When empty, the
	// classification's own Recoverable flag decides.
	RetryableErrors []classify.Category

	// OnRetry, if set, is invoked after a failed attempt has been accepted
	// for retry and before the backoff sleep.
	OnRetry func(ctx context.Context, rctx *RetryContext, err error, verdict classify.Classification)
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Strategy:    StrategyExponential,
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
		RetryableErrors: []classify.Category{
			classify.CategoryNetwork,
			classify.CategoryTimeout,
			classify.CategoryUnknown,
		},
	}
}

// WithStrategy returns a new config with Strategy set.
func (rc RetryConfig) WithStrategy(s Strategy) RetryConfig {
	rc.Strategy = s
	return rc
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithBaseDelay returns a new config with BaseDelay set.
func (rc RetryConfig) WithBaseDelay(d time.Duration) RetryConfig {
	rc.BaseDelay = d
	return rc
}

// WithMaxDelay returns a new config with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithJitter returns a new config with Jitter set.
func (rc RetryConfig) WithJitter(jitter bool) RetryConfig {
	rc.Jitter = jitter
	return rc
}

// WithRetryableErrors returns a new config retrying only the given categories.
func (rc RetryConfig) WithRetryableErrors(categories ...classify.Category) RetryConfig {
	rc.RetryableErrors = categories
	return rc
}

// RetryContext is the mutable per-invocation record. It is owned exclusively
// by one in-flight call and never shared across concurrent invocations.
type RetryContext struct {
	OperationID string
	Attempt     int
	StartTime   time.Time
	Metadata    map[string]interface{}
	Checkpoints []string
}

// NewRetryContext creates a fresh context for one execution of operationID.
func NewRetryContext(operationID string) *RetryContext {
	return &RetryContext{
		OperationID: operationID,
		StartTime:   time.Now().UTC(),
		Metadata:    make(map[string]interface{}),
	}
}

// Retryer drives repeated execution attempts under a backoff policy,
// consulting a classifier to decide whether a failure is retryable.
type Retryer struct {
	classifier *classify.Classifier
}

// NewRetryer creates a retryer. A nil classifier gets the built-in rule set.
func NewRetryer(classifier *classify.Classifier) *Retryer {
	if classifier == nil {
		classifier = classify.New()
	}
	return &Retryer{classifier: classifier}
}

// Classifier returns the classifier consulted on each failure.
func (r *Retryer) Classifier() *classify.Classifier {
	return r.classifier
}

// Execute invokes op until it succeeds, the attempts are exhausted, or the
// failure classifies as non-retryable. Terminal failures propagate the
// operation's original error unchanged.
func (r *Retryer) Execute(ctx context.Context, op Operation, cfg RetryConfig, rctx *RetryContext) (interface{}, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if rctx == nil {
		rctx = NewRetryContext("")
	}

	for {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		verdict := r.classifier.Classify(err)
		if rctx.Attempt+1 >= cfg.MaxAttempts || !retryable(cfg, verdict) {
			return nil, err
		}

		rctx.Attempt++
		if cfg.OnRetry != nil {
			cfg.OnRetry(ctx, rctx, err, verdict)
		}

		timer := time.NewTimer(CalculateDelay(rctx.Attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, aegiserrors.New(aegiserrors.CodeCanceled, "context canceled during retry", ctx.Err()).
				WithContext("operation_id", rctx.OperationID).
				WithContext("attempt", rctx.Attempt).
				WithContext("max_attempts", cfg.MaxAttempts)
		case <-timer.C:
		}
	}
}

// CalculateDelay computes the backoff delay before retry number attempt
// (attempt >= 1). Fixed strategy always yields BaseDelay; exponential yields
// min(BaseDelay * Multiplier^(attempt-1), MaxDelay).
func CalculateDelay(attempt int, cfg RetryConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch cfg.Strategy {
	case StrategyFixed:
		delay = cfg.BaseDelay
	default:
		multiplier := cfg.Multiplier
		if multiplier == 0 {
			multiplier = 2.0
		}
		delay = time.Duration(float64(cfg.BaseDelay) * math.Pow(multiplier, float64(attempt-1)))
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	if cfg.Jitter && delay > 0 {
		delay += time.Duration(rand.Float64() * float64(delay) * 0.5)
	}
	return delay
}

// retryable decides whether a classified failure qualifies for another
// attempt. A non-recoverable verdict never retries; an empty category list
// defers to the verdict's Recoverable flag.
func retryable(cfg RetryConfig, verdict classify.Classification) bool {
	if !verdict.Recoverable {
		return false
	}
	if len(cfg.RetryableErrors) == 0 {
		return true
	}
	for _, cat := range cfg.RetryableErrors {
		if cat == verdict.Category {
			return true
		}
	}
	return false
}
