package journal

import (
	"context"
	"errors"
	"fmt"
)

// schemaVersion is bumped when the schema changes; the journal is
// disposable diagnostic state, so a mismatch just asks for a delete.
const schemaVersion = 1

// ErrSchemaMismatch indicates the journal was written by an incompatible version.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

const schemaSQL = `
CREATE TABLE schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE runs (
	id TEXT PRIMARY KEY,
	backend_identity TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	enriched INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	aborted INTEGER NOT NULL DEFAULT 0,
	abort_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	exercise_id INTEGER NOT NULL,
	attempts INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	raw_snippet TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);

CREATE INDEX idx_attempts_outcome ON attempts(outcome, recorded_at);
CREATE INDEX idx_attempts_exercise ON attempts(exercise_id);
`

func (j *Journal) initSchema(ctx context.Context) error {
	var tableExists int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := j.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create journal schema: %w", err)
		}
		if _, err := j.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}

	var version int
	if err := j.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start fresh)",
			ErrSchemaMismatch, version, schemaVersion, j.path)
	}
	return nil
}
