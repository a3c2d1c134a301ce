package journal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Journal records runs and per-item attempts in SQLite so an operator can
// triage failures without replaying the run. It is diagnostic state only:
// the JSON progress and result stores remain the source of truth, and
// journal write failures are surfaced as errors for the caller to log and
// ignore.
type Journal struct {
	db   *sql.DB
	path string
}

// Run summarizes one pipeline invocation.
type Run struct {
	ID              string
	BackendIdentity string
	StartedAt       time.Time
	FinishedAt      *time.Time
	Enriched        int
	Failed          int
	Skipped         int
	Aborted         bool
	AbortReason     string
}

// Attempt outcome values.
const (
	OutcomeEnriched = "enriched"
	OutcomeFailed   = "failed"
	OutcomeAborted  = "aborted"
)

// Attempt records the final state of one item within a run.
type Attempt struct {
	RunID      string
	ExerciseID int64
	Attempts   int
	Outcome    string
	Error      string
	RawSnippet string
	RecordedAt time.Time
}

// Open initializes or connects to the journal database.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// OpenInDir opens the journal at its conventional filename inside dir.
func OpenInDir(dir string) (*Journal, error) {
	return Open(filepath.Join(dir, "journal.db"))
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Path returns the database file location.
func (j *Journal) Path() string {
	return j.path
}

// BeginRun inserts a row for a starting run.
func (j *Journal) BeginRun(ctx context.Context, runID, backendIdentity string, startedAt time.Time) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, backend_identity, started_at) VALUES (?, ?, ?)`,
		runID, backendIdentity, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("journal begin run: %w", err)
	}
	return nil
}

// FinishRun records the final counts for a run.
func (j *Journal) FinishRun(ctx context.Context, runID string, finishedAt time.Time, enriched, failed, skipped int, abortReason string) error {
	aborted := 0
	if strings.TrimSpace(abortReason) != "" {
		aborted = 1
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, enriched = ?, failed = ?, skipped = ?, aborted = ?, abort_reason = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano), enriched, failed, skipped, aborted, abortReason, runID)
	if err != nil {
		return fmt.Errorf("journal finish run: %w", err)
	}
	return nil
}

// RecordAttempt inserts the terminal outcome of one item.
func (j *Journal) RecordAttempt(ctx context.Context, attempt Attempt) error {
	recordedAt := attempt.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, exercise_id, attempts, outcome, error, raw_snippet, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.RunID, attempt.ExerciseID, attempt.Attempts, attempt.Outcome,
		attempt.Error, attempt.RawSnippet, recordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("journal record attempt: %w", err)
	}
	return nil
}

// RecentFailures returns the newest failed attempts, most recent first.
func (j *Journal) RecentFailures(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, exercise_id, attempts, outcome, error, raw_snippet, recorded_at
		 FROM attempts WHERE outcome = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		OutcomeFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query failures: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var attempt Attempt
		var recordedAt string
		if err := rows.Scan(&attempt.RunID, &attempt.ExerciseID, &attempt.Attempts,
			&attempt.Outcome, &attempt.Error, &attempt.RawSnippet, &recordedAt); err != nil {
			return nil, fmt.Errorf("journal scan attempt: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			attempt.RecordedAt = parsed
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal iterate failures: %w", err)
	}
	return attempts, nil
}

// LastRun returns the most recently started run, if any.
func (j *Journal) LastRun(ctx context.Context) (Run, bool, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, backend_identity, started_at, finished_at, enriched, failed, skipped, aborted, abort_reason
		 FROM runs ORDER BY started_at DESC LIMIT 1`)

	var run Run
	var startedAt string
	var finishedAt sql.NullString
	var aborted int
	err := row.Scan(&run.ID, &run.BackendIdentity, &startedAt, &finishedAt,
		&run.Enriched, &run.Failed, &run.Skipped, &aborted, &run.AbortReason)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("journal last run: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		run.StartedAt = parsed
	}
	if finishedAt.Valid {
		if parsed, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			run.FinishedAt = &parsed
		}
	}
	run.Aborted = aborted != 0
	return run, true, nil
}
