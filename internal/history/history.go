// Package history persists a durable log of transfer operations and their
// per-file outcomes in an embedded SQLite database. Every operation-level
// failure and every batch item lands here exactly once; the log is how an
// operator reconstructs what happened after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// timeLayout is the stored timestamp format, UTC.
const timeLayout = time.RFC3339

// Outcome values for a log entry.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is one row of the transfer log. FileName and Prefix are empty for
// operations without a per-file subject (listing prefixes, token refresh).
type Entry struct {
	ID         int64
	RecordedAt time.Time
	BatchID    string
	Customer   string
	Operation  string
	Prefix     string
	FileName   string
	Outcome    string
	Detail     string
}

// Log wraps the SQLite database holding the transfer log. Use ":memory:"
// as the path in tests.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	insertStmt *sql.Stmt
	recentStmt *sql.Stmt
	batchStmt  *sql.Stmt
}

// Open opens (creating if needed) the log database at dbPath and applies
// pending schema migrations.
func Open(dbPath string, logger *slog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	l := &Log{db: db, logger: logger, now: time.Now}

	if err := l.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: prepare statements: %w", err)
	}

	logger.Debug("transfer log ready", "path", dbPath)

	return l, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("history: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func (l *Log) prepareStatements(ctx context.Context) error {
	var err error

	l.insertStmt, err = l.db.PrepareContext(ctx, `
		INSERT INTO transfer_log
			(recorded_at, batch_id, customer, operation, prefix, file_name, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	l.recentStmt, err = l.db.PrepareContext(ctx, `
		SELECT id, recorded_at, batch_id, customer, operation, prefix, file_name, outcome, detail
		FROM transfer_log
		ORDER BY id DESC
		LIMIT ?`)
	if err != nil {
		return err
	}

	l.batchStmt, err = l.db.PrepareContext(ctx, `
		SELECT id, recorded_at, batch_id, customer, operation, prefix, file_name, outcome, detail
		FROM transfer_log
		WHERE batch_id = ?
		ORDER BY id`)
	if err != nil {
		return err
	}

	return nil
}

// Record inserts one entry. RecordedAt is stamped by the log, not the
// caller; the entry's ID is assigned by the database.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.Outcome != OutcomeSuccess && e.Outcome != OutcomeFailure {
		return fmt.Errorf("history: invalid outcome %q", e.Outcome)
	}

	ts := l.now().UTC().Format(timeLayout)

	_, err := l.insertStmt.ExecContext(ctx,
		ts, e.BatchID, e.Customer, e.Operation, e.Prefix, e.FileName, e.Outcome, e.Detail)
	if err != nil {
		return fmt.Errorf("history: recording %s entry: %w", e.Operation, err)
	}

	return nil
}

// RecordOutcome is the common case: one operation on one file whose
// success is determined by opErr.
func (l *Log) RecordOutcome(ctx context.Context, batchID, customer, operation, prefix, fileName string, opErr error) error {
	e := Entry{
		BatchID:   batchID,
		Customer:  customer,
		Operation: operation,
		Prefix:    prefix,
		FileName:  fileName,
		Outcome:   OutcomeSuccess,
	}

	if opErr != nil {
		e.Outcome = OutcomeFailure
		e.Detail = opErr.Error()
	}

	return l.Record(ctx, e)
}

// Recent returns the newest entries, most recent first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.recentStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying recent entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Batch returns every entry recorded under one batch ID, in insertion
// order.
func (l *Log) Batch(ctx context.Context, batchID string) ([]Entry, error) {
	rows, err := l.batchStmt.QueryContext(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("history: querying batch %s: %w", batchID, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry

	for rows.Next() {
		var (
			e  Entry
			ts string
		)

		if err := rows.Scan(&e.ID, &ts, &e.BatchID, &e.Customer, &e.Operation,
			&e.Prefix, &e.FileName, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("history: scanning entry: %w", err)
		}

		t, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("history: parsing timestamp %q: %w", ts, err)
		}
		e.RecordedAt = t

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating entries: %w", err)
	}

	return entries, nil
}

// Close releases prepared statements and the database handle.
func (l *Log) Close() error {
	for _, stmt := range []*sql.Stmt{l.insertStmt, l.recentStmt, l.batchStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return l.db.Close()
}
