// Package sqlite implements repository.UserRepository on SQLite. It is the
// hardened alternative to the JSON file store: concurrent writers are detected
// with a version column instead of silently overwriting each other.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the server still
// cross-compiles without a C toolchain. Open a file path for production and
// ":memory:" in tests.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB is a user store backed by one SQLite database.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and migrates the schema.
//
// The pool holds a single connection: every ":memory:" connection would
// otherwise see its own empty database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", dbPath, err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: connecting to %s: %w", dbPath, err)
	}

	// Readers keep going while a guess is written.
	if !strings.Contains(dbPath, ":memory:") {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: enabling WAL: %w", err)
		}
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: migrating: %w", err)
	}

	return db, nil
}

// Close checkpoints the WAL and releases the file.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate brings the schema up to date. It runs on every start.
func (db *DB) migrate() error {
	// guesses holds the JSON encoding of User.Guesses. Guesses are only ever
	// read and written together with their user, so a child table buys nothing.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                     TEXT PRIMARY KEY,
			display_name           TEXT NOT NULL,
			provider_username      TEXT NOT NULL DEFAULT '',
			oauth_provider         TEXT NOT NULL,
			access_token           TEXT NOT NULL DEFAULT '',
			refresh_token          TEXT NOT NULL DEFAULT '',
			access_token_expire_at DATETIME,
			guesses                TEXT NOT NULL DEFAULT '{}',
			version                INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_users_access_token ON users(access_token);
	`)
	if err != nil {
		return fmt.Errorf("sqlite: creating users: %w", err)
	}

	return db.ensureColumn("users", "hidden", "INTEGER NOT NULL DEFAULT 0")
}

// ensureColumn adds column to table unless an earlier start already did.
func (db *DB) ensureColumn(table, column, definition string) error {
	var present bool
	if err := db.conn.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM pragma_table_info(?) WHERE name = ?)`,
		table, column,
	).Scan(&present); err != nil {
		return fmt.Errorf("sqlite: inspecting %s.%s: %w", table, column, err)
	}
	if present {
		return nil
	}
	if _, err := db.conn.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition)); err != nil {
		return fmt.Errorf("sqlite: adding %s.%s: %w", table, column, err)
	}
	return nil
}
