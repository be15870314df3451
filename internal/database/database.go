// Package database opens the deployer's sqlite state store and manages
// its schema. The database holds execution logs, restart keys, encrypted
// stacks, and the audit trail; template definitions stay on the
// filesystem and never touch it.
package database

import (
	"database/sql"
	"os"
	"path/filepath"

	// SQLite driver for database/sql
	_ "github.com/mattn/go-sqlite3"
)

// Executor goroutines append messages while handlers read them back, so
// writers wait out transient locks instead of failing with SQLITE_BUSY.
const dsnOptions = "?_foreign_keys=on&_busy_timeout=5000"

// DB wraps a sql.DB connection with additional functionality.
type DB struct {
	*sql.DB
}

// New opens the database at dbPath, creating the parent directory if
// needed.
func New(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Migrate runs all database migrations.
func (db *DB) Migrate() error {
	return runMigrations(db.DB)
}
