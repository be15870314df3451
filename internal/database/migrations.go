package database

import (
	"database/sql"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS execution_groups (
		application TEXT NOT NULL,
		task TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		restart_key TEXT,
		vm_install_key TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (application, task)
	)`,

	`CREATE TABLE IF NOT EXISTS execute_messages (
		application TEXT NOT NULL,
		task TEXT NOT NULL,
		idx INTEGER NOT NULL,
		command TEXT NOT NULL,
		commandtext TEXT,
		stderr TEXT,
		result TEXT,
		exit_code INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		finished BOOLEAN NOT NULL DEFAULT 0,
		partial BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (application, task, idx)
	)`,

	`CREATE TABLE IF NOT EXISTS install_keys (
		restart_key TEXT PRIMARY KEY,
		vm_install_key TEXT UNIQUE NOT NULL,
		application TEXT NOT NULL,
		task TEXT NOT NULL,
		submission TEXT NOT NULL,
		failed_step INTEGER NOT NULL DEFAULT -1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS stacks (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS stack_entries (
		stack_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (stack_id, key),
		FOREIGN KEY (stack_id) REFERENCES stacks(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		application TEXT,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_execute_messages_group ON execute_messages(application, task)`,
	`CREATE INDEX IF NOT EXISTS idx_install_keys_group ON install_keys(application, task)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_application ON audit_logs(application)`,
}

func runMigrations(db *sql.DB) error {
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
