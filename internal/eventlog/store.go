// Package eventlog persists resolution decisions in SQLite. It is the
// engine's only durable sink: one row per evaluated message, recording
// what was detected, what was resolved, and whether injection occurred.
// The log is append-only during operation; retention pruning runs at
// startup.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
	"github.com/nugget/remora/internal/reminders"
)

// Record is one persisted evaluation.
type Record struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"ts"`
	MessageLen    int       `json:"message_len"`
	Detected      []string  `json:"detected"`
	Context       string    `json:"context"`
	InjectionRate float64   `json:"injection_rate"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Injected      bool      `json:"injected"`
	Reminder      string    `json:"reminder,omitempty"`
}

// Store is a SQLite-backed decision log. All public methods are safe
// for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the decision log at dbPath using the
// registered "sqlite3" driver. The schema is created automatically on
// first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewStoreWithDB wraps an existing database handle. Used by tests that
// open in-memory databases with a different driver.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id             TEXT PRIMARY KEY,
		ts             TIMESTAMP NOT NULL,
		message_len    INTEGER NOT NULL,
		detected       TEXT NOT NULL,
		context        TEXT NOT NULL,
		injection_rate REAL NOT NULL,
		temperature    REAL,
		injected       BOOLEAN NOT NULL,
		reminder       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
	CREATE INDEX IF NOT EXISTS idx_decisions_context ON decisions(context);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordDecision persists an engine evaluation. Satisfies
// [reminders.DecisionRecorder].
func (s *Store) RecordDecision(ctx context.Context, ev reminders.Evaluation) error {
	detected, err := json.Marshal(ev.Detected)
	if err != nil {
		return fmt.Errorf("encode detected contexts: %w", err)
	}

	var reminder string
	if ev.Reminder != nil {
		reminder = *ev.Reminder
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, ts, message_len, detected, context, injection_rate, temperature, injected, reminder)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		time.Now().UTC(),
		ev.MessageLen,
		string(detected),
		ev.Decision.Context,
		ev.Decision.InjectionRate,
		ev.Temperature,
		ev.Injected,
		reminder,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first. A non-positive
// limit defaults to 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, message_len, detected, context, injection_rate, temperature, injected, reminder
		FROM decisions ORDER BY ts DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r        Record
			detected string
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.MessageLen, &detected,
			&r.Context, &r.InjectionRate, &r.Temperature, &r.Injected, &r.Reminder); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(detected), &r.Detected); err != nil {
			return nil, fmt.Errorf("decode detected contexts: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountInjected returns how many recorded decisions resulted in an
// injection.
func (s *Store) CountInjected(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE injected`).Scan(&n)
	return n, err
}

// PruneOlderThan deletes records with timestamps before cutoff and
// returns how many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM decisions WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune decisions: %w", err)
	}
	return res.RowsAffected()
}
