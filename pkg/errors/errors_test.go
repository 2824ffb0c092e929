// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	e := New(CodeTimeout, "operation timed out", nil)
	if !strings.Contains(e.Error(), "TIMEOUT") {
		t.Errorf("expected code in message, got %q", e.Error())
	}
	if !strings.Contains(e.Error(), "operation timed out") {
		t.Errorf("expected message text, got %q", e.Error())
	}
}

func TestErrorWrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	e := New(CodeInternal, "dial failed", cause)

	if !strings.Contains(e.Error(), "connection refused") {
		t.Errorf("expected cause in message, got %q", e.Error())
	}
	if !stderrors.Is(e, cause) {
		t.Errorf("expected errors.Is to find cause through Unwrap")
	}
}

func TestWithContextChaining(t *testing.T) {
	e := New(CodeCircuitOpen, "circuit breaker open", nil).
		WithContext("breaker", "payments").
		WithContext("attempt", 3).
		WithRecoverable(true)

	if e.Context["breaker"] != "payments" {
		t.Errorf("expected breaker context, got %v", e.Context["breaker"])
	}
	if e.Context["attempt"] != 3 {
		t.Errorf("expected attempt context, got %v", e.Context["attempt"])
	}
	if !e.Recoverable {
		t.Errorf("expected recoverable")
	}
}

func TestAsError(t *testing.T) {
	plain := stderrors.New("boom")
	wrapped := AsError(plain)
	if wrapped.Code != CodeInternal {
		t.Errorf("expected CodeInternal for plain error, got %v", wrapped.Code)
	}

	typed := New(CodeTimeout, "slow", nil)
	if AsError(typed) != typed {
		t.Errorf("expected typed error to pass through unchanged")
	}

	if AsError(nil) != nil {
		t.Errorf("expected nil for nil error")
	}
}

func TestIsCode(t *testing.T) {
	e := New(CodeCheckpointNotFound, "checkpoint not found", nil)
	if !IsCode(e, CodeCheckpointNotFound) {
		t.Errorf("expected IsCode to match")
	}
	if IsCode(e, CodeTimeout) {
		t.Errorf("expected IsCode to reject wrong code")
	}
	if IsCode(stderrors.New("plain"), CodeTimeout) {
		t.Errorf("expected IsCode to reject untyped error")
	}
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeCheckpointNotFound, 404},
		{CodeUnauthorized, 401},
		{CodeInvalidInput, 400},
		{CodeTimeout, 408},
		{CodeCircuitOpen, 503},
		{CodeRetryExhausted, 503},
		{CodeInternal, 500},
		{CodeJournal, 500},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x", nil).StatusCode; got != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.code, tt.want, got)
		}
	}
}

func TestMarshalJSON(t *testing.T) {
	e := New(CodeCircuitOpen, "rejected", nil).WithRecoverable(true)
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["code"] != string(CodeCircuitOpen) {
		t.Errorf("expected code field, got %v", decoded["code"])
	}
	if decoded["recoverable"] != true {
		t.Errorf("expected recoverable field true")
	}
}
