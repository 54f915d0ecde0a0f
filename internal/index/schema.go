// Package index mirrors registry snapshots into SQLite, with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	path        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS refs (
	source   TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	raw      TEXT NOT NULL,
	target   TEXT,
	resolved INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (source, seq)
);

CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(target);

CREATE TABLE IF NOT EXISTS diagnostics (
	seq     INTEGER PRIMARY KEY,
	kind    TEXT NOT NULL,
	source  TEXT NOT NULL,
	raw     TEXT NOT NULL DEFAULT '',
	cycle   TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB wraps a sql.DB with mirror-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
