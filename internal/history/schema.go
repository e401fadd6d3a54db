// Package history records export runs in SQLite.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS export_runs (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	root                     TEXT    NOT NULL DEFAULT '',
	render_html              INTEGER NOT NULL DEFAULT 0,
	required_tag             TEXT    NOT NULL DEFAULT '',
	required_frontmatter_key TEXT    NOT NULL DEFAULT '',
	destination              TEXT    NOT NULL DEFAULT '',
	note_count               INTEGER NOT NULL DEFAULT 0,
	bytes                    INTEGER NOT NULL DEFAULT 0,
	checksum                 TEXT    NOT NULL DEFAULT '',
	saved                    INTEGER NOT NULL DEFAULT 0,
	error                    TEXT    NOT NULL DEFAULT '',
	finished_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_export_runs_finished ON export_runs(finished_at);
`

// DB wraps a sql.DB with history operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
