package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the ledger tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		history_id   TEXT NOT NULL,
		history_name TEXT NOT NULL DEFAULT '',
		state        TEXT NOT NULL DEFAULT 'RUNNING',
		created_at   TEXT NOT NULL,
		completed_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS tools (
		run_id       TEXT NOT NULL,
		tool_id      TEXT NOT NULL,
		name         TEXT NOT NULL DEFAULT '',
		state        TEXT NOT NULL DEFAULT 'DISCOVERED',
		combinations INTEGER NOT NULL DEFAULT 0,
		failures     INTEGER NOT NULL DEFAULT 0,
		updated_at   TEXT NOT NULL,
		PRIMARY KEY (run_id, tool_id),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT PRIMARY KEY,
		run_id       TEXT NOT NULL,
		tool_id      TEXT NOT NULL,
		job_id       TEXT NOT NULL DEFAULT '',
		input        TEXT NOT NULL DEFAULT '{}',
		outcome      TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		submitted_at TEXT NOT NULL,
		completed_at TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_run_id ON jobs(run_id)`,
	// Compound index for the per-tool job listing
	`CREATE INDEX IF NOT EXISTS idx_jobs_run_tool ON jobs(run_id, tool_id)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "tools",
		column:   "reason",
		alterSQL: "ALTER TABLE tools ADD COLUMN reason TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "jobs",
		column:   "combination",
		alterSQL: "ALTER TABLE jobs ADD COLUMN combination INTEGER NOT NULL DEFAULT 0",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_jobs_outcome ON jobs(outcome)",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil // Column already exists
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
