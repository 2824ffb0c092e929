// SPDX-License-Identifier: Apache-2.0
package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	aegiserrors "github.com/jllopis/aegis/pkg/errors"
)

func TestClassifyNetwork(t *testing.T) {
	c := New()
	tests := []string{
		"dial tcp 10.0.0.1:443: connection refused",
		"read: connection reset by peer",
		"lookup api.example.com: no such host",
		"write: broken pipe",
	}
	for _, msg := range tests {
		got := c.Classify(errors.New(msg))
		if got.Category != CategoryNetwork {
			t.Errorf("%q: expected NETWORK, got %s", msg, got.Category)
		}
		if !got.Recoverable {
			t.Errorf("%q: expected recoverable", msg)
		}
		if got.Action != ActionRetry {
			t.Errorf("%q: expected RETRY, got %s", msg, got.Action)
		}
	}
}

func TestClassifyTimeout(t *testing.T) {
	c := New()

	got := c.Classify(errors.New("request timed out after 30s"))
	if got.Category != CategoryTimeout {
		t.Errorf("expected TIMEOUT, got %s", got.Category)
	}
	if !got.Recoverable {
		t.Errorf("expected timeout to be recoverable")
	}

	got = c.Classify(fmt.Errorf("fetch: %w", context.DeadlineExceeded))
	if got.Category != CategoryTimeout {
		t.Errorf("expected TIMEOUT for wrapped DeadlineExceeded, got %s", got.Category)
	}
}

func TestClassifyTimeoutBeatsNetwork(t *testing.T) {
	c := New()
	// Message matches both families; timeout has the higher priority.
	got := c.Classify(errors.New("dial tcp 10.0.0.1:443: i/o timeout"))
	if got.Category != CategoryTimeout {
		t.Errorf("expected TIMEOUT, got %s", got.Category)
	}
}

func TestClassifyAuthentication(t *testing.T) {
	c := New()
	tests := []string{
		"server returned 401",
		"403 forbidden",
		"authentication failed for user svc",
	}
	for _, msg := range tests {
		got := c.Classify(errors.New(msg))
		if got.Category != CategoryAuthentication {
			t.Errorf("%q: expected AUTHENTICATION, got %s", msg, got.Category)
		}
		if got.Recoverable {
			t.Errorf("%q: expected not recoverable", msg)
		}
		if got.Action != ActionEscalate {
			t.Errorf("%q: expected ESCALATE, got %s", msg, got.Action)
		}
	}
}

func TestClassifyUnknownDefault(t *testing.T) {
	c := New()
	got := c.Classify(errors.New("something odd happened"))
	if got.Category != CategoryUnknown {
		t.Errorf("expected UNKNOWN, got %s", got.Category)
	}
	if got.Severity != SeverityMedium {
		t.Errorf("expected MEDIUM severity, got %s", got.Severity)
	}
	if !got.Recoverable {
		t.Errorf("expected recoverable default")
	}
	if got.Action != ActionRetry {
		t.Errorf("expected RETRY default, got %s", got.Action)
	}
}

func TestClassifyTypedError(t *testing.T) {
	c := New()

	got := c.Classify(aegiserrors.New(aegiserrors.CodeTimeout, "slow backend", nil).WithRecoverable(true))
	if got.Category != CategoryTimeout {
		t.Errorf("expected TIMEOUT from typed error, got %s", got.Category)
	}
	if !got.Recoverable {
		t.Errorf("expected recoverable from typed flag")
	}

	got = c.Classify(aegiserrors.New(aegiserrors.CodeUnauthorized, "bad token", nil))
	if got.Category != CategoryAuthentication {
		t.Errorf("expected AUTHENTICATION from typed error, got %s", got.Category)
	}
	if got.Action != ActionEscalate {
		t.Errorf("expected ESCALATE, got %s", got.Action)
	}
}

func TestCustomRuleOverridesBuiltin(t *testing.T) {
	c := New()
	err := errors.New("connection refused")

	before := c.Classify(err)
	if before.Category != CategoryNetwork {
		t.Fatalf("expected NETWORK before custom rule, got %s", before.Category)
	}

	c.AddRule("refuse-hard", func(e error) bool {
		return e.Error() == "connection refused"
	}, Classification{
		Category:    CategoryValidation,
		Severity:    SeverityHigh,
		Recoverable: false,
		Action:      ActionEscalate,
	}, 200)

	after := c.Classify(err)
	if after.Category != CategoryValidation {
		t.Errorf("expected custom rule to win, got %s", after.Category)
	}

	// The classification returned before the rule change is untouched.
	if before.Category != CategoryNetwork {
		t.Errorf("earlier classification mutated: %s", before.Category)
	}
}

func TestEqualPriorityKeepsInsertionOrder(t *testing.T) {
	c := NewEmpty()
	match := func(error) bool { return true }
	c.AddRule("first", match, Classification{Category: "FIRST"}, 10)
	c.AddRule("second", match, Classification{Category: "SECOND"}, 10)

	got := c.Classify(errors.New("anything"))
	if got.Category != "FIRST" {
		t.Errorf("expected first-inserted rule to win on ties, got %s", got.Category)
	}
}

func TestRemoveRule(t *testing.T) {
	c := New()
	c.RemoveRule("network")

	// Without the network rule the message falls through to UNKNOWN.
	got := c.Classify(errors.New("connection refused"))
	if got.Category != CategoryUnknown {
		t.Errorf("expected UNKNOWN after removal, got %s", got.Category)
	}
}

func TestMetadataCarriesRuleAndError(t *testing.T) {
	c := New()
	got := c.Classify(errors.New("connection refused"))
	if got.Metadata["rule"] != "network" {
		t.Errorf("expected rule metadata, got %v", got.Metadata["rule"])
	}
	if got.Metadata["error"] != "connection refused" {
		t.Errorf("expected error metadata, got %v", got.Metadata["error"])
	}
}

func TestClassifyFreshValuePerCall(t *testing.T) {
	c := New()
	first := c.Classify(errors.New("connection refused"))
	first.Metadata["tampered"] = true

	second := c.Classify(errors.New("connection refused"))
	if _, ok := second.Metadata["tampered"]; ok {
		t.Errorf("metadata shared between classifications")
	}
}
