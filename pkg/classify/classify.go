// SPDX-License-Identifier: Apache-2.0
// Package classify maps raised errors to structured classifications that
// drive retry, fallback, rollback, and escalation decisions.
package classify

import (
	"sort"
	"sync"
)

// Category groups errors by their origin. The set is open: custom rules may
// introduce new categories.
type Category string

const (
	CategoryNetwork        Category = "NETWORK"
	CategoryTimeout        Category = "TIMEOUT"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryValidation     Category = "VALIDATION"
	CategoryUnknown        Category = "UNKNOWN"
)

// Severity grades how serious a classified error is.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Action is the recommended response to a classified error.
type Action string

const (
	ActionRetry    Action = "RETRY"
	ActionFallback Action = "FALLBACK"
	ActionRollback Action = "ROLLBACK"
	ActionEscalate Action = "ESCALATE"
)

// Classification is the structured verdict for a single error. A fresh value
// is produced on every Classify call and is never mutated after return.
type Classification struct {
	Category    Category
	Severity    Severity
	Recoverable bool
	Action      Action
	Metadata    map[string]interface{}
}

// Rule pairs a predicate with the classification template it produces.
// Rules are evaluated highest priority first; ties keep insertion order, so
// a custom rule must set an explicit higher priority to override a built-in.
type Rule struct {
	Name      string
	Predicate func(error) bool
	Template  Classification
	Priority  int

	// Derive, when set, computes the classification from the error itself
	// instead of copying Template. Used by the typed-error built-in.
	Derive func(error) Classification

	seq int
}

// Classifier evaluates an ordered rule set. Classify is a pure function of
// the error and the current rules; rule mutation is synchronized so AddRule
// may be called concurrently with Classify.
type Classifier struct {
	mu    sync.RWMutex
	rules []Rule
	seq   int
}

// New returns a classifier preloaded with the built-in rules.
func New() *Classifier {
	c := &Classifier{}
	for _, r := range builtinRules() {
		c.add(r)
	}
	return c
}

// NewEmpty returns a classifier with no rules; every error classifies to the
// UNKNOWN default until rules are added.
func NewEmpty() *Classifier {
	return &Classifier{}
}

// AddRule inserts a rule and re-sorts the rule set by priority.
func (c *Classifier) AddRule(name string, predicate func(error) bool, template Classification, priority int) {
	c.add(Rule{
		Name:      name,
		Predicate: predicate,
		Template:  template,
		Priority:  priority,
	})
}

func (c *Classifier) add(r Rule) {
	if r.Predicate == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	r.seq = c.seq
	c.rules = append(c.rules, r)
	sort.SliceStable(c.rules, func(i, j int) bool {
		if c.rules[i].Priority != c.rules[j].Priority {
			return c.rules[i].Priority > c.rules[j].Priority
		}
		return c.rules[i].seq < c.rules[j].seq
	})
}

// RemoveRule deletes all rules registered under the given name.
func (c *Classifier) RemoveRule(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.rules[:0]
	for _, r := range c.rules {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	c.rules = kept
}

// Rules returns the names of the registered rules in evaluation order.
func (c *Classifier) Rules() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Classify evaluates rules in priority order and returns the verdict of the
// first matching rule, or the UNKNOWN default when none match.
func (c *Classifier) Classify(err error) Classification {
	if err == nil {
		return defaultClassification("", nil)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.rules {
		if r.Predicate(err) {
			return instantiate(r, err)
		}
	}
	return defaultClassification(err.Error(), nil)
}

// instantiate produces a fresh Classification from a rule template so later
// metadata mutation by callers cannot corrupt the rule set.
func instantiate(r Rule, err error) Classification {
	if r.Derive != nil {
		out := r.Derive(err)
		if out.Metadata == nil {
			out.Metadata = map[string]interface{}{"rule": r.Name, "error": err.Error()}
		}
		return out
	}
	out := r.Template
	out.Metadata = make(map[string]interface{}, len(r.Template.Metadata)+2)
	for k, v := range r.Template.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata["rule"] = r.Name
	out.Metadata["error"] = err.Error()
	return out
}

func defaultClassification(msg string, extra map[string]interface{}) Classification {
	md := make(map[string]interface{}, len(extra)+1)
	for k, v := range extra {
		md[k] = v
	}
	if msg != "" {
		md["error"] = msg
	}
	return Classification{
		Category:    CategoryUnknown,
		Severity:    SeverityMedium,
		Recoverable: true,
		Action:      ActionRetry,
		Metadata:    md,
	}
}
