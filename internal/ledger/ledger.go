// Package ledger keeps a SQLite history of pipeline runs: when each sync,
// validate, or duplication scan ran and what it found. Only run summaries
// are stored; alignment state itself is always recomputed from disk.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	coverage   REAL NOT NULL DEFAULT 0,
	created    INTEGER NOT NULL DEFAULT 0,
	archived   INTEGER NOT NULL DEFAULT 0,
	refreshed  INTEGER NOT NULL DEFAULT 0,
	duplicates INTEGER NOT NULL DEFAULT 0,
	errors     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run is one recorded pipeline invocation.
type Run struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"` // sync, validate, duplication
	StartedAt  time.Time `json:"started_at"`
	Coverage   float64   `json:"coverage"`
	Created    int       `json:"created"`
	Archived   int       `json:"archived"`
	Refreshed  int       `json:"refreshed"`
	Duplicates int       `json:"duplicates"`
	Errors     int       `json:"errors"`
}

// DB wraps the run-history database.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Record inserts one run summary.
func (db *DB) Record(r Run) error {
	_, err := db.conn.Exec(`
		INSERT INTO runs (kind, started_at, coverage, created, archived, refreshed, duplicates, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Kind, r.StartedAt, r.Coverage, r.Created, r.Archived, r.Refreshed, r.Duplicates, r.Errors)
	if err != nil {
		return fmt.Errorf("ledger: record run: %w", err)
	}
	return nil
}

// Recent returns the newest n runs, newest first.
func (db *DB) Recent(n int) ([]Run, error) {
	rows, err := db.conn.Query(`
		SELECT id, kind, started_at, coverage, created, archived, refreshed, duplicates, errors
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.StartedAt, &r.Coverage, &r.Created, &r.Archived, &r.Refreshed, &r.Duplicates, &r.Errors); err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
