// SPDX-License-Identifier: Apache-2.0
// Package metrics aggregates recovery outcomes into an inspectable snapshot.
// The collector owns one background goroutine that rotates a rolling error
// window; Destroy stops it and is safe to call more than once.
package metrics

import (
	"sync"
	"time"

	"github.com/jllopis/aegis/pkg/classify"
)

// DefaultRotationInterval is the rolling window length used when the
// collector is created with a zero interval.
const DefaultRotationInterval = time.Minute

// Snapshot is a point-in-time view of the collector. Counters are
// monotonically non-decreasing for the collector's lifetime; only the
// rolling window resets, once per rotation interval.
type Snapshot struct {
	TotalOperations   int64
	TotalFailures     int64
	SuccessRate       float64
	ErrorBreakdown    map[classify.Category]int64
	TotalRecoveries   int64
	RecoveryBreakdown map[classify.Action]int64
	FailedRecoveries  int64

	// WindowErrors counts errors recorded in the current rolling window;
	// LastWindowErrors holds the previous completed window.
	WindowErrors     int64
	LastWindowErrors int64

	// AverageDuration is the mean recorded operation duration.
	AverageDuration time.Duration
}

// Collector is a concurrency-safe counters/timers sink.
type Collector struct {
	mu sync.Mutex

	totalOperations   int64
	totalFailures     int64
	totalDuration     time.Duration
	errorBreakdown    map[classify.Category]int64
	totalRecoveries   int64
	recoveryBreakdown map[classify.Action]int64
	failedRecoveries  int64

	windowErrors     int64
	lastWindowErrors int64

	interval time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewCollector creates a collector and starts its window-rotation goroutine.
// A zero interval selects DefaultRotationInterval.
func NewCollector(interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultRotationInterval
	}
	c := &Collector{
		errorBreakdown:    make(map[classify.Category]int64),
		recoveryBreakdown: make(map[classify.Action]int64),
		interval:          interval,
		done:              make(chan struct{}),
	}
	go c.rotateLoop()
	return c
}

func (c *Collector) rotateLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.rotate()
		}
	}
}

func (c *Collector) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastWindowErrors = c.windowErrors
	c.windowErrors = 0
}

// RecordOperation records one terminal operation outcome.
func (c *Collector) RecordOperation(operationID string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalOperations++
	c.totalDuration += duration
	if !success {
		c.totalFailures++
	}
}

// RecordError records a classified failure.
func (c *Collector) RecordError(err error, verdict classify.Classification) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errorBreakdown[verdict.Category]++
	c.windowErrors++
}

// RecordRecovery records one recovery action and whether it succeeded.
func (c *Collector) RecordRecovery(action classify.Action, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRecoveries++
	c.recoveryBreakdown[action]++
	if !success {
		c.failedRecoveries++
	}
}

// Stats returns a snapshot. SuccessRate is derived, never stored.
func (c *Collector) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		TotalOperations:   c.totalOperations,
		TotalFailures:     c.totalFailures,
		ErrorBreakdown:    make(map[classify.Category]int64, len(c.errorBreakdown)),
		TotalRecoveries:   c.totalRecoveries,
		RecoveryBreakdown: make(map[classify.Action]int64, len(c.recoveryBreakdown)),
		FailedRecoveries:  c.failedRecoveries,
		WindowErrors:      c.windowErrors,
		LastWindowErrors:  c.lastWindowErrors,
	}
	for k, v := range c.errorBreakdown {
		snap.ErrorBreakdown[k] = v
	}
	for k, v := range c.recoveryBreakdown {
		snap.RecoveryBreakdown[k] = v
	}
	if c.totalOperations > 0 {
		snap.SuccessRate = float64(c.totalOperations-c.totalFailures) / float64(c.totalOperations)
		snap.AverageDuration = c.totalDuration / time.Duration(c.totalOperations)
	}
	return snap
}

// Destroy stops the rotation goroutine. Idempotent; required before the
// collector is dropped so the process can exit cleanly.
func (c *Collector) Destroy() {
	c.once.Do(func() {
		close(c.done)
	})
}
