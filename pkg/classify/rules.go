// SPDX-License-Identifier: Apache-2.0
package classify

import (
	"context"
	"errors"
	"net"
	"strings"

	aegiserrors "github.com/jllopis/aegis/pkg/errors"
)

// Built-in rule priorities. Typed errors carry their own verdict and win over
// message inspection; authentication outranks timeout outranks network so
// "connection timed out" and "401 unauthorized" land in the right bucket.
const (
	priorityTyped          = 100
	priorityAuthentication = 60
	priorityTimeout        = 50
	priorityNetwork        = 40
)

var networkPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"broken pipe",
	"network is unreachable",
	"dial tcp",
}

var timeoutPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

var authPatterns = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"authentication failed",
	"permission denied",
}

func builtinRules() []Rule {
	return []Rule{
		{
			Name:      "typed-error",
			Predicate: isTypedError,
			Derive: func(err error) Classification {
				var ae *aegiserrors.Error
				errors.As(err, &ae)
				return typedClassification(ae)
			},
			Priority: priorityTyped,
		},
		{
			Name:      "authentication",
			Predicate: matchesAny(authPatterns),
			Template: Classification{
				Category:    CategoryAuthentication,
				Severity:    SeverityHigh,
				Recoverable: false,
				Action:      ActionEscalate,
			},
			Priority: priorityAuthentication,
		},
		{
			Name:      "timeout",
			Predicate: isTimeout,
			Template: Classification{
				Category:    CategoryTimeout,
				Severity:    SeverityMedium,
				Recoverable: true,
				Action:      ActionRetry,
			},
			Priority: priorityTimeout,
		},
		{
			Name:      "network",
			Predicate: matchesAny(networkPatterns),
			Template: Classification{
				Category:    CategoryNetwork,
				Severity:    SeverityMedium,
				Recoverable: true,
				Action:      ActionRetry,
			},
			Priority: priorityNetwork,
		},
	}
}

func isTypedError(err error) bool {
	var ae *aegiserrors.Error
	return errors.As(err, &ae)
}

func matchesAny(patterns []string) func(error) bool {
	return func(err error) bool {
		msg := strings.ToLower(err.Error())
		for _, p := range patterns {
			if strings.Contains(msg, p) {
				return true
			}
		}
		return false
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return matchesAny(timeoutPatterns)(err)
}

// typedClassification maps an *aegiserrors.Error to a classification using
// its code and recoverable flag.
func typedClassification(ae *aegiserrors.Error) Classification {
	out := Classification{
		Category:    CategoryUnknown,
		Severity:    SeverityMedium,
		Recoverable: ae.Recoverable,
		Action:      ActionRetry,
		Metadata: map[string]interface{}{
			"rule":  "typed-error",
			"code":  string(ae.Code),
			"error": ae.Error(),
		},
	}
	switch ae.Code {
	case aegiserrors.CodeTimeout:
		out.Category = CategoryTimeout
	case aegiserrors.CodeUnauthorized:
		out.Category = CategoryAuthentication
		out.Severity = SeverityHigh
		out.Action = ActionEscalate
	case aegiserrors.CodeInvalidInput:
		out.Category = CategoryValidation
		out.Severity = SeverityLow
		out.Action = ActionEscalate
	case aegiserrors.CodeCircuitOpen:
		out.Category = CategoryNetwork
		out.Action = ActionFallback
	}
	if !out.Recoverable && out.Action == ActionRetry {
		out.Action = ActionEscalate
	}
	return out
}
