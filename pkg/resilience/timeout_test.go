// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	aegiserrors "github.com/jllopis/aegis/pkg/errors"
)

func TestWithTimeout(t *testing.T) {
	tests := []struct {
		name        string
		duration    time.Duration
		sleepTime   time.Duration
		expectError bool
	}{
		{"fast operation", time.Second, 10 * time.Millisecond, false},
		{"slow operation", 50 * time.Millisecond, 200 * time.Millisecond, true},
		{"no deadline", 0, 50 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := WithTimeout(context.Background(), tt.duration, func(ctx context.Context) (interface{}, error) {
				time.Sleep(tt.sleepTime)
				return "done", nil
			})

			if tt.expectError {
				if !aegiserrors.IsCode(err, aegiserrors.CodeTimeout) {
					t.Errorf("expected CodeTimeout, got %v", err)
				}
				if value != nil {
					t.Errorf("expected nil value on timeout, got %v", value)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if value != "done" {
					t.Errorf("expected 'done', got %v", value)
				}
			}
		})
	}
}

func TestWithTimeoutPropagatesOperationError(t *testing.T) {
	boom := errors.New("backend down")
	_, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})
	if err != boom {
		t.Errorf("expected operation error unchanged, got %v", err)
	}
}

func TestWithRetryHelper(t *testing.T) {
	attempts := 0
	value, err := WithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return "ok", nil
	}, 5, time.Millisecond)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if value != "ok" {
		t.Errorf("expected 'ok', got %v", value)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryNonRecoverable(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("403 forbidden")
	}, 5, time.Millisecond)

	if err == nil {
		t.Errorf("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected non-recoverable failure to stop immediately, got %d attempts", attempts)
	}
}
