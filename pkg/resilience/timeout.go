// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"time"

	aegiserrors "github.com/jllopis/aegis/pkg/errors"
)

// WithTimeout races op against a timer and fails with a CodeTimeout error if
// the timer fires first. The derived context is cancelled on every outcome so
// no timer leaks. A zero duration runs op without a deadline.
func WithTimeout(ctx context.Context, d time.Duration, op Operation) (interface{}, error) {
	if d == 0 {
		return op(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value interface{}
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := op(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		return nil, aegiserrors.New(aegiserrors.CodeTimeout, "operation timed out", ctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	case res := <-done:
		return res.value, res.err
	}
}

// WithRetry runs op under an ad-hoc fixed-delay retry policy without a full
// recovery manager. Any recoverable failure is retried.
func WithRetry(ctx context.Context, op Operation, maxAttempts int, baseDelay time.Duration) (interface{}, error) {
	cfg := RetryConfig{
		Strategy:    StrategyFixed,
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
	}
	return NewRetryer(nil).Execute(ctx, op, cfg, NewRetryContext("adhoc"))
}
