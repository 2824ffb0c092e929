// SPDX-License-Identifier: Apache-2.0
// Package journal persists terminal recovery outcomes in a SQLite database
// for post-hoc diagnosis. The journal is an optional sink: it records what
// happened, never checkpoints, and losing it does not affect recovery.
package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	aegiserrors "github.com/jllopis/aegis/pkg/errors"

	_ "modernc.org/sqlite"
)

const eventTable = "recovery_events"

// Outcome labels for journal events.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// Event is one terminal recovery outcome.
type Event struct {
	ID          string
	OperationID string
	Outcome     string
	Category    string
	Action      string
	Attempts    int
	Duration    time.Duration
	Error       string
	CreatedAt   time.Time
}

// Store persists recovery events in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, aegiserrors.New(aegiserrors.CodeJournal, "failed to open journal", err).
			WithContext("path", path)
	}
	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing database handle and ensures schema.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, aegiserrors.New(aegiserrors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureSchema(db); err != nil {
		return nil, aegiserrors.New(aegiserrors.CodeJournal, "failed to ensure journal schema", err)
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + eventTable + ` (
			id TEXT PRIMARY KEY,
			operation_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + eventTable + `_operation ON ` + eventTable + `(operation_id);`,
		`CREATE INDEX IF NOT EXISTS idx_` + eventTable + `_created ON ` + eventTable + `(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append stores one event. A missing id or timestamp is filled in.
func (s *Store) Append(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+eventTable+
			` (id, operation_id, outcome, category, action, attempts, duration_ms, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OperationID, ev.Outcome, ev.Category, ev.Action,
		ev.Attempts, ev.Duration.Milliseconds(), ev.Error, ev.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return aegiserrors.New(aegiserrors.CodeJournal, "failed to append journal event", err).
			WithContext("operation_id", ev.OperationID)
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	return s.query(ctx,
		`SELECT id, operation_id, outcome, category, action, attempts, duration_ms, error, created_at
		 FROM `+eventTable+` ORDER BY created_at DESC, id LIMIT ?`, limit)
}

// ForOperation returns the newest events for one operation, most recent first.
func (s *Store) ForOperation(ctx context.Context, operationID string, limit int) ([]Event, error) {
	return s.query(ctx,
		`SELECT id, operation_id, outcome, category, action, attempts, duration_ms, error, created_at
		 FROM `+eventTable+` WHERE operation_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		operationID, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, aegiserrors.New(aegiserrors.CodeJournal, "failed to query journal", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var durationMS, createdAt int64
		if err := rows.Scan(&ev.ID, &ev.OperationID, &ev.Outcome, &ev.Category, &ev.Action,
			&ev.Attempts, &durationMS, &ev.Error, &createdAt); err != nil {
			return nil, aegiserrors.New(aegiserrors.CodeJournal, "failed to scan journal event", err)
		}
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		ev.CreatedAt = time.UnixMilli(createdAt).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, aegiserrors.New(aegiserrors.CodeJournal, "failed to iterate journal events", err)
	}
	return events, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
