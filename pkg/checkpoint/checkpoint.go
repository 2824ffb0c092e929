// SPDX-License-Identifier: Apache-2.0
// Package checkpoint stores immutable snapshots of operation state for
// rollback. Snapshots are deep-copied on creation and again on rollback so
// neither the caller's live state nor the stored snapshot can be corrupted
// through shared references.
package checkpoint

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"

	aegiserrors "github.com/jllopis/aegis/pkg/errors"
)

// Checkpoint is an immutable snapshot of operation state.
type Checkpoint struct {
	ID          string
	OperationID string
	Timestamp   time.Time
	Description string
	State       interface{}
}

// Store holds checkpoints keyed by generated id, preserving insertion order.
// Checkpoints do not expire; callers clear them once an operation completes
// to bound memory growth.
type Store struct {
	mu    sync.Mutex
	byID  map[string]*Checkpoint
	order []string
}

// NewStore creates an empty checkpoint store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Checkpoint)}
}

// Create snapshots state under a fresh id. The stored snapshot is a deep
// copy, so later mutation of the caller's state does not affect it.
func (s *Store) Create(operationID string, state interface{}, description string) (Checkpoint, error) {
	stored, err := deepCopy(state)
	if err != nil {
		return Checkpoint{}, err
	}
	returned, err := deepCopy(state)
	if err != nil {
		return Checkpoint{}, err
	}

	cp := &Checkpoint{
		ID:          uuid.NewString(),
		OperationID: operationID,
		Timestamp:   time.Now().UTC(),
		Description: description,
		State:       stored,
	}

	s.mu.Lock()
	s.byID[cp.ID] = cp
	s.order = append(s.order, cp.ID)
	s.mu.Unlock()

	out := *cp
	out.State = returned
	return out, nil
}

// All returns every checkpoint in insertion order.
func (s *Store) All() []Checkpoint {
	return s.list("")
}

// For returns the checkpoints of one operation in insertion order.
func (s *Store) For(operationID string) []Checkpoint {
	return s.list(operationID)
}

func (s *Store) list(operationID string) []Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Checkpoint
	for _, id := range s.order {
		cp, ok := s.byID[id]
		if !ok {
			continue
		}
		if operationID != "" && cp.OperationID != operationID {
			continue
		}
		state, err := deepCopy(cp.State)
		if err != nil {
			// The state copied on Create; a copy of the copy cannot fail.
			state = cp.State
		}
		c := *cp
		c.State = state
		out = append(out, c)
	}
	return out
}

// Latest returns the most recently created checkpoint for an operation.
func (s *Store) Latest(operationID string) (Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.order) - 1; i >= 0; i-- {
		cp, ok := s.byID[s.order[i]]
		if !ok || cp.OperationID != operationID {
			continue
		}
		state, err := deepCopy(cp.State)
		if err != nil {
			state = cp.State
		}
		c := *cp
		c.State = state
		return c, true
	}
	return Checkpoint{}, false
}

// Rollback returns a deep copy of the snapshot stored under id. Mutating the
// returned value does not affect later rollbacks of the same checkpoint.
func (s *Store) Rollback(id string) (interface{}, error) {
	s.mu.Lock()
	cp, ok := s.byID[id]
	s.mu.Unlock()

	if !ok {
		return nil, aegiserrors.New(aegiserrors.CodeCheckpointNotFound, "checkpoint not found", nil).
			WithContext("checkpoint_id", id)
	}
	return deepCopy(cp.State)
}

// Clear removes every checkpoint.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*Checkpoint)
	s.order = nil
}

// ClearFor removes the checkpoints of one operation.
func (s *Store) ClearFor(operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		cp, ok := s.byID[id]
		if ok && cp.OperationID == operationID {
			delete(s.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Remove deletes the checkpoints with the given ids.
func (s *Store) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if drop[id] {
			delete(s.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Count returns the number of stored checkpoints.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func deepCopy(state interface{}) (interface{}, error) {
	if state == nil {
		return nil, nil
	}
	copied, err := copystructure.Copy(state)
	if err != nil {
		return nil, aegiserrors.New(aegiserrors.CodeInvalidInput, "checkpoint state is not copyable", err)
	}
	return copied, nil
}
