package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"liftlore/internal/backend"
	"liftlore/internal/exercise"
	"liftlore/internal/journal"
	"liftlore/internal/logging"
	"liftlore/internal/payload"
	"liftlore/internal/store"
)

// Default pipeline timing, overridable through configuration.
const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 2 * time.Second
	DefaultPacingDelay   = time.Second
)

// Config wires a Runner to its collaborators.
type Config struct {
	Backend  backend.Backend
	Results  *store.Results
	Progress *store.Progress
	Journal  *journal.Journal
	Logger   *slog.Logger

	MuscleSchema payload.MuscleSchema

	RetryAttempts int
	RetryDelay    time.Duration
	PacingDelay   time.Duration

	// Limit caps how many pending exercises a single run processes.
	// Zero means no cap.
	Limit int
}

// Summary reports what a run accomplished. Remaining counts pending
// items excluded by the run limit; an aborted run additionally leaves
// items unattempted, so Total equals Skipped+Enriched+Failed+Remaining
// only for runs that finish.
type Summary struct {
	RunID       string
	Backend     string
	Total       int
	Skipped     int
	Enriched    int
	Failed      int
	Remaining   int
	Aborted     bool
	AbortReason string
	Elapsed     time.Duration
}

// Runner drives one enrichment run over a loaded catalog.
type Runner struct {
	backend  backend.Backend
	results  *store.Results
	progress *store.Progress
	journal  *journal.Journal
	logger   *slog.Logger
	schema   payload.MuscleSchema

	retryAttempts int
	retryDelay    time.Duration
	pacingDelay   time.Duration
	limit         int

	now func() time.Time
}

// NewRunner validates cfg and builds a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Backend == nil {
		return nil, errors.New("enrich: backend is required")
	}
	if cfg.Results == nil {
		return nil, errors.New("enrich: results store is required")
	}
	if cfg.Progress == nil {
		return nil, errors.New("enrich: progress store is required")
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay < 0 {
		retryDelay = 0
	}
	pacing := cfg.PacingDelay
	if pacing < 0 {
		pacing = 0
	}
	return &Runner{
		backend:       cfg.Backend,
		results:       cfg.Results,
		progress:      cfg.Progress,
		journal:       cfg.Journal,
		logger:        logging.NewComponentLogger(cfg.Logger, "enrich"),
		schema:        cfg.MuscleSchema,
		retryAttempts: attempts,
		retryDelay:    retryDelay,
		pacingDelay:   pacing,
		limit:         cfg.Limit,
		now:           time.Now,
	}, nil
}

// Pending returns the records not yet marked processed, in catalog order.
func (r *Runner) Pending(records []exercise.Record) []exercise.Record {
	pending := make([]exercise.Record, 0, len(records))
	for _, record := range records {
		if r.progress.Has(record.ID) {
			continue
		}
		pending = append(pending, record)
	}
	return pending
}

// Run enriches every pending record in catalog order. Individual item
// failures are counted and the run continues; quota exhaustion, fatal
// backend errors, persistence failures, and cancellation abort the run.
// The returned Summary is valid even when err is non-nil.
func (r *Runner) Run(ctx context.Context, records []exercise.Record) (Summary, error) {
	started := r.now()
	identity := r.backend.Identity()
	summary := Summary{
		RunID:   uuid.NewString(),
		Backend: identity,
		Total:   len(records),
	}
	logger := r.logger.With(
		logging.String(logging.FieldRunID, summary.RunID),
		logging.String(logging.FieldBackend, identity),
	)

	if previous := r.progress.BackendIdentity(); previous != "" && previous != identity {
		logger.Warn("backend changed since last run; enriched output will mix backends",
			logging.String("previous_backend", previous))
	}

	pending := r.Pending(records)
	summary.Skipped = summary.Total - len(pending)
	if r.limit > 0 && len(pending) > r.limit {
		summary.Remaining = len(pending) - r.limit
		pending = pending[:r.limit]
	}

	logger.Info("starting enrichment run",
		logging.Int("total", summary.Total),
		logging.Int("skipped", summary.Skipped),
		logging.Int("pending", len(pending)))

	r.journalBegin(logger, summary.RunID, identity, started)

	var runErr error
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			summary.Aborted = true
			summary.AbortReason = "interrupted"
			runErr = err
			break
		}

		itemLogger := logger.With(logging.Int64(logging.FieldExerciseID, record.ID))
		outcome := r.enrichOne(ctx, itemLogger, record)
		r.journalAttempt(itemLogger, journal.Attempt{
			RunID:      summary.RunID,
			ExerciseID: record.ID,
			Attempts:   outcome.attempts,
			Outcome:    outcome.journalOutcome(),
			Error:      outcome.errorText(),
			RawSnippet: outcome.rawSnippet,
			RecordedAt: r.now(),
		})

		switch {
		case outcome.abort != nil:
			summary.Aborted = true
			summary.AbortReason = abortReason(outcome.abort)
			runErr = outcome.abort
		case outcome.err != nil:
			summary.Failed++
		default:
			summary.Enriched++
		}
		if summary.Aborted {
			break
		}

		if err := sleepContext(ctx, r.pacingDelay); err != nil {
			summary.Aborted = true
			summary.AbortReason = "interrupted"
			runErr = err
			break
		}
	}

	summary.Elapsed = r.now().Sub(started)
	r.journalFinish(logger, summary)

	logger.Info("enrichment run finished",
		logging.Int("enriched", summary.Enriched),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Bool("aborted", summary.Aborted),
		logging.Duration("elapsed", summary.Elapsed))
	return summary, runErr
}

// itemOutcome is the terminal state of one record within a run.
type itemOutcome struct {
	attempts   int
	err        error
	abort      error
	rawSnippet string
}

func (o itemOutcome) journalOutcome() string {
	switch {
	case o.abort != nil:
		return journal.OutcomeAborted
	case o.err != nil:
		return journal.OutcomeFailed
	default:
		return journal.OutcomeEnriched
	}
}

func (o itemOutcome) errorText() string {
	switch {
	case o.abort != nil:
		return o.abort.Error()
	case o.err != nil:
		return o.err.Error()
	default:
		return ""
	}
}

func (r *Runner) enrichOne(ctx context.Context, logger *slog.Logger, record exercise.Record) itemOutcome {
	outcome := itemOutcome{}

	var raw string
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		outcome.attempts = attempt

		generated, err := r.backend.Generate(ctx, record)
		if err == nil {
			raw = generated
			break
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome.abort = err
			return outcome
		}
		if backend.IsRunAbort(err) {
			logger.Error("backend error ends the run", logging.Error(err))
			outcome.abort = err
			return outcome
		}
		if !backend.IsRetryable(err) {
			outcome.err = err
			logger.Warn("exercise failed", logging.Error(err))
			return outcome
		}
		if attempt == r.retryAttempts {
			outcome.err = fmt.Errorf("gave up after %d attempts: %w", attempt, err)
			logger.Warn("exercise failed after retries",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(err))
			return outcome
		}
		logger.Warn("transient backend error; retrying",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("retry_delay", r.retryDelay),
			logging.Error(err))
		if err := sleepContext(ctx, r.retryDelay); err != nil {
			outcome.abort = err
			return outcome
		}
	}

	parsed, err := payload.Parse(raw, r.schema)
	if err != nil {
		outcome.err = err
		outcome.rawSnippet = payload.Snippet(raw)
		logger.Warn("backend output rejected",
			logging.Error(err),
			logging.String("raw_snippet", outcome.rawSnippet),
			logging.String(logging.FieldErrorHint, "item stays pending; a later run retries it"))
		return outcome
	}

	enriched := store.NewEnrichedRecord(record, parsed, r.backend.Identity(), r.now().UTC())
	if err := r.results.Put(enriched); err != nil {
		outcome.abort = err
		return outcome
	}
	if err := r.progress.MarkProcessed(record.ID, r.backend.Identity()); err != nil {
		outcome.abort = err
		return outcome
	}

	logger.Info("exercise enriched",
		logging.Int(logging.FieldAttempt, outcome.attempts))
	return outcome
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, backend.ErrQuota):
		return "quota exhausted"
	case errors.Is(err, backend.ErrFatal):
		return "fatal backend error"
	case errors.Is(err, store.ErrPersist):
		return "persistence failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted"
	default:
		return err.Error()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// journalWriteTimeout bounds bookkeeping writes. The journal uses its own
// context so an interrupted run still records its terminal attempt and
// finish row instead of leaving the run open.
const journalWriteTimeout = 5 * time.Second

func journalContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), journalWriteTimeout)
}

func (r *Runner) journalBegin(logger *slog.Logger, runID, identity string, startedAt time.Time) {
	if r.journal == nil {
		return
	}
	ctx, cancel := journalContext()
	defer cancel()
	if err := r.journal.BeginRun(ctx, runID, identity, startedAt); err != nil {
		logger.Warn("journal write failed; run diagnostics will be incomplete", logging.Error(err))
	}
}

func (r *Runner) journalAttempt(logger *slog.Logger, attempt journal.Attempt) {
	if r.journal == nil {
		return
	}
	ctx, cancel := journalContext()
	defer cancel()
	if err := r.journal.RecordAttempt(ctx, attempt); err != nil {
		logger.Warn("journal write failed; run diagnostics will be incomplete", logging.Error(err))
	}
}

func (r *Runner) journalFinish(logger *slog.Logger, summary Summary) {
	if r.journal == nil {
		return
	}
	ctx, cancel := journalContext()
	defer cancel()
	if err := r.journal.FinishRun(ctx, summary.RunID, r.now(), summary.Enriched, summary.Failed, summary.Skipped, summary.AbortReason); err != nil {
		logger.Warn("journal write failed; run diagnostics will be incomplete", logging.Error(err))
	}
}
