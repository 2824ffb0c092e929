// SPDX-License-Identifier: Apache-2.0
package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	aegiserrors "github.com/jllopis/aegis/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	events := []Event{
		{OperationID: "op-a", Outcome: OutcomeFailure, Category: "NETWORK", Action: "RETRY", Attempts: 3, Duration: 120 * time.Millisecond, Error: "connection refused", CreatedAt: time.UnixMilli(1000).UTC()},
		{OperationID: "op-b", Outcome: OutcomeSuccess, Attempts: 1, CreatedAt: time.UnixMilli(2000).UTC()},
		{OperationID: "op-a", Outcome: OutcomeRejected, Action: "ESCALATE", CreatedAt: time.UnixMilli(3000).UTC()},
	}
	for _, ev := range events {
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() returned %d events, want 3", len(got))
	}
	if got[0].Outcome != OutcomeRejected || got[2].Outcome != OutcomeFailure {
		t.Errorf("events not ordered newest first: %v, %v", got[0].Outcome, got[2].Outcome)
	}
	if got[2].Category != "NETWORK" || got[2].Attempts != 3 || got[2].Duration != 120*time.Millisecond {
		t.Errorf("event fields not round-tripped: %+v", got[2])
	}
	if got[0].ID == "" {
		t.Error("Append() did not assign an id")
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := Event{OperationID: "op", Outcome: OutcomeSuccess, CreatedAt: time.UnixMilli(int64(i + 1)).UTC()}
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Recent(2) returned %d events", len(got))
	}
}

func TestForOperation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, Event{OperationID: "wanted", Outcome: OutcomeSuccess}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, Event{OperationID: "other", Outcome: OutcomeFailure}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := store.ForOperation(ctx, "wanted", 10)
	if err != nil {
		t.Fatalf("ForOperation() error = %v", err)
	}
	if len(got) != 1 || got[0].OperationID != "wanted" {
		t.Errorf("ForOperation() = %+v, want single event for %q", got, "wanted")
	}
}

func TestNewStoreNilDB(t *testing.T) {
	_, err := NewStore(nil)
	if !aegiserrors.IsCode(err, aegiserrors.CodeInvalidInput) {
		t.Errorf("NewStore(nil) error = %v, want %v", err, aegiserrors.CodeInvalidInput)
	}
}
