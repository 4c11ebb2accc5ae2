// Package deadletter persists a durable audit trail of envelopes and
// conditions the Dispatcher Core could not deliver, so an operator can
// inspect what was dropped after the fact.
package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roasbeef/meshactor/internal/build"
	"github.com/roasbeef/meshactor/internal/dispatch"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS deadletters (
    id INTEGER PRIMARY KEY,
    recorded_at INTEGER NOT NULL,
    kind TEXT NOT NULL,
    dst TEXT NOT NULL,
    reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deadletters_recorded_at
    ON deadletters(recorded_at);
`

// Store is a SQLite-backed ObservabilitySink that records every
// deadlettered envelope, duplicate registration, queue overflow, and
// protocol violation the Dispatcher Core observes.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a deadletter audit database at
// dbPath and applies its schema.
func Open(dbPath string) (*Store, error) {
	sqlDB, err := build.OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open deadletter db: %w", err)
	}

	if _, err := sqlDB.Exec(schemaDDL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply deadletter schema: %w", err)
	}

	return &Store{db: sqlDB}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Observe implements dispatch.ObservabilitySink. Recording failures are
// swallowed rather than propagated: a broken audit trail must never
// block the dispatcher's own routing decisions.
func (s *Store) Observe(ev dispatch.ObservabilityEvent) {
	kind, dst, reason := classify(ev)

	_, _ = s.db.ExecContext(
		context.Background(),
		`INSERT INTO deadletters (recorded_at, kind, dst, reason)
		 VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), kind, dst, reason,
	)
}

func classify(ev dispatch.ObservabilityEvent) (kind, dst, reason string) {
	switch e := ev.(type) {
	case dispatch.DeadletterEvent:
		return "deadletter", e.Envelope.Dst.String(), e.Reason.Error()

	case dispatch.DuplicatePathEvent:
		return "duplicate_path", e.Path.String(), ""

	case dispatch.QueueOverflowEvent:
		return "queue_overflow", e.Peer.String(), ""

	case dispatch.ProtocolViolationEvent:
		return "protocol_violation", "", e.Detail

	default:
		return "unknown", "", ""
	}
}

// Recent returns the n most recently recorded entries, newest first, for
// the admin surface.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT recorded_at, kind, dst, reason FROM deadletters
		 ORDER BY id DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt int64
		if err := rows.Scan(&recordedAt, &e.Kind, &e.Dst, &e.Reason); err != nil {
			return nil, err
		}
		e.RecordedAt = time.Unix(recordedAt, 0)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Entry is one recorded audit row, exposed for the admin surface.
type Entry struct {
	RecordedAt time.Time
	Kind       string
	Dst        string
	Reason     string
}
