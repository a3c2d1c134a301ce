package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"liftlore/internal/backend"
	"liftlore/internal/exercise"
	"liftlore/internal/journal"
	"liftlore/internal/logging"
	"liftlore/internal/payload"
	"liftlore/internal/store"
)

const validPlainPayload = `{"primary_muscle":"Pectoralis Major","translations":[` +
	`{"language":2,"name":"Bench Press","description":"Lie on a flat bench and press the bar."},` +
	`{"language":4,"name":"Press de banca","description":"Acostado en un banco plano, empuja la barra."}]}`

type stubBackend struct {
	identity string
	calls    []int64
	respond  func(call int, record exercise.Record) (string, error)
}

func (s *stubBackend) Identity() string { return s.identity }

func (s *stubBackend) Generate(_ context.Context, record exercise.Record) (string, error) {
	s.calls = append(s.calls, record.ID)
	return s.respond(len(s.calls), record)
}

func alwaysValid(int, exercise.Record) (string, error) {
	return validPlainPayload, nil
}

func testRecord(id int64) exercise.Record {
	return exercise.Record{
		ID:       id,
		UUID:     fmt.Sprintf("00000000-0000-0000-0000-%012d", id),
		Category: exercise.Category{ID: 1, Name: "Strength"},
		Equipment: []exercise.Equipment{
			{ID: 1, Name: "Barbell"},
		},
		Translations: []json.RawMessage{
			json.RawMessage(fmt.Sprintf(`{"language":2,"name":"Exercise %d","description":"Original."}`, id)),
		},
	}
}

type harness struct {
	results  *store.Results
	progress *store.Progress
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	results, err := store.OpenResults(filepath.Join(dir, "enriched.json"), logging.NewNop())
	if err != nil {
		t.Fatalf("OpenResults returned error: %v", err)
	}
	progress, err := store.OpenProgress(filepath.Join(dir, "progress.json"), logging.NewNop())
	if err != nil {
		t.Fatalf("OpenProgress returned error: %v", err)
	}
	return &harness{results: results, progress: progress}
}

func (h *harness) runner(t *testing.T, b backend.Backend) *Runner {
	t.Helper()
	runner, err := NewRunner(Config{
		Backend:       b,
		Results:       h.results,
		Progress:      h.progress,
		Logger:        logging.NewNop(),
		MuscleSchema:  payload.MuscleSchemaPlain,
		RetryAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	return runner
}

func TestRunEnrichesAllPending(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "openai/gpt-4o", respond: alwaysValid}
	runner := h.runner(t, stub)

	records := []exercise.Record{testRecord(10), testRecord(20), testRecord(30)}
	summary, err := runner.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Total != 3 || summary.Enriched != 3 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Aborted {
		t.Error("run should not be aborted")
	}

	for _, id := range []int64{10, 20, 30} {
		if !h.results.Has(id) {
			t.Errorf("missing result for %d", id)
		}
		if !h.progress.Has(id) {
			t.Errorf("missing progress for %d", id)
		}
	}
	if got := h.progress.BackendIdentity(); got != "openai/gpt-4o" {
		t.Errorf("progress backend = %q", got)
	}

	enriched, ok := h.results.Get(20)
	if !ok {
		t.Fatal("result 20 missing")
	}
	if enriched.BackendIdentity != "openai/gpt-4o" {
		t.Errorf("result backend = %q", enriched.BackendIdentity)
	}
	if enriched.EnrichedData.PrimaryMuscle.Name != "Pectoralis Major" {
		t.Errorf("primary muscle = %q", enriched.EnrichedData.PrimaryMuscle.Name)
	}
}

func TestRunSkipsProcessedAndPreservesOrder(t *testing.T) {
	h := newHarness(t)
	if err := h.progress.MarkProcessed(20, "openai/gpt-4o"); err != nil {
		t.Fatalf("MarkProcessed returned error: %v", err)
	}

	stub := &stubBackend{identity: "openai/gpt-4o", respond: alwaysValid}
	runner := h.runner(t, stub)

	records := []exercise.Record{testRecord(10), testRecord(20), testRecord(30)}
	summary, err := runner.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Skipped != 1 || summary.Enriched != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(stub.calls) != 2 || stub.calls[0] != 10 || stub.calls[1] != 30 {
		t.Errorf("backend calls = %v, want [10 30]", stub.calls)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "openai/gpt-4o", respond: alwaysValid}
	runner := h.runner(t, stub)

	records := []exercise.Record{testRecord(10), testRecord(20)}
	if _, err := runner.Run(context.Background(), records); err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	firstCalls := len(stub.calls)

	summary, err := runner.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}
	if summary.Skipped != 2 || summary.Enriched != 0 {
		t.Errorf("unexpected second summary: %+v", summary)
	}
	if len(stub.calls) != firstCalls {
		t.Errorf("second run made %d extra backend calls", len(stub.calls)-firstCalls)
	}
	if h.results.Count() != 2 {
		t.Errorf("results count = %d", h.results.Count())
	}
}

func TestTransientErrorRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "openai/gpt-4o"}
	stub.respond = func(call int, _ exercise.Record) (string, error) {
		if call < 3 {
			return "", backend.Wrap(backend.ErrTransient, "chat completion", fmt.Errorf("http 429"))
		}
		return validPlainPayload, nil
	}
	runner := h.runner(t, stub)

	summary, err := runner.Run(context.Background(), []exercise.Record{testRecord(10)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Enriched != 1 || summary.Failed != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(stub.calls) != 3 {
		t.Errorf("backend called %d times, want 3", len(stub.calls))
	}
}

func TestTransientErrorExhaustsRetries(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "openai/gpt-4o"}
	stub.respond = func(call int, record exercise.Record) (string, error) {
		if record.ID == 20 {
			return "", backend.Wrap(backend.ErrTransient, "chat completion", fmt.Errorf("http 503"))
		}
		return validPlainPayload, nil
	}
	runner := h.runner(t, stub)

	records := []exercise.Record{testRecord(10), testRecord(20), testRecord(30)}
	summary, err := runner.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Failed != 1 || summary.Enriched != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	// One attempt each for 10 and 30, three for 20.
	if len(stub.calls) != 5 {
		t.Errorf("backend called %d times, want 5", len(stub.calls))
	}
	for _, id := range []int64{10, 30} {
		if !h.progress.Has(id) || !h.results.Has(id) {
			t.Errorf("exercise %d should be enriched", id)
		}
	}
	if h.progress.Has(20) || h.results.Has(20) {
		t.Error("failed exercise must stay pending")
	}

	// The failed id is retried from scratch on the next run.
	healthy := &stubBackend{identity: "openai/gpt-4o", respond: alwaysValid}
	summary, err = h.runner(t, healthy).Run(context.Background(), records)
	if err != nil {
		t.Fatalf("resume run returned error: %v", err)
	}
	if summary.Skipped != 2 || summary.Enriched != 1 {
		t.Errorf("unexpected resume summary: %+v", summary)
	}
	if len(healthy.calls) != 1 || healthy.calls[0] != 20 {
		t.Errorf("resume calls = %v, want [20]", healthy.calls)
	}
}

func TestQuotaErrorAbortsRun(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "claude/claude-3-5-sonnet-20241022"}
	stub.respond = func(call int, record exercise.Record) (string, error) {
		if record.ID == 20 {
			return "", backend.Wrap(backend.ErrQuota, "messages", fmt.Errorf("credit balance is too low"))
		}
		return validPlainPayload, nil
	}
	runner := h.runner(t, stub)

	records := []exercise.Record{testRecord(10), testRecord(20), testRecord(30)}
	summary, err := runner.Run(context.Background(), records)
	if err == nil {
		t.Fatal("expected run error")
	}
	if !backend.IsRunAbort(err) {
		t.Errorf("error should abort runs: %v", err)
	}
	if !summary.Aborted || summary.AbortReason != "quota exhausted" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Enriched != 1 {
		t.Errorf("enriched = %d, want 1", summary.Enriched)
	}
	// 30 is never attempted.
	if len(stub.calls) != 2 {
		t.Errorf("backend calls = %v", stub.calls)
	}
}

func TestFatalAbortThenResume(t *testing.T) {
	h := newHarness(t)
	failing := &stubBackend{identity: "groq/llama-3.3-70b-versatile"}
	failing.respond = func(call int, record exercise.Record) (string, error) {
		if record.ID == 20 {
			return "", backend.Wrap(backend.ErrFatal, "chat completion", fmt.Errorf("http 401"))
		}
		return validPlainPayload, nil
	}
	records := []exercise.Record{testRecord(10), testRecord(20), testRecord(30)}

	summary, err := h.runner(t, failing).Run(context.Background(), records)
	if err == nil {
		t.Fatal("expected run error")
	}
	if !summary.Aborted || summary.Enriched != 1 {
		t.Fatalf("unexpected abort summary: %+v", summary)
	}

	healthy := &stubBackend{identity: "groq/llama-3.3-70b-versatile", respond: alwaysValid}
	summary, err = h.runner(t, healthy).Run(context.Background(), records)
	if err != nil {
		t.Fatalf("resume run returned error: %v", err)
	}
	if summary.Skipped != 1 || summary.Enriched != 2 {
		t.Errorf("unexpected resume summary: %+v", summary)
	}
	if len(healthy.calls) != 2 || healthy.calls[0] != 20 || healthy.calls[1] != 30 {
		t.Errorf("resume calls = %v, want [20 30]", healthy.calls)
	}
	if h.results.Count() != 3 {
		t.Errorf("results count = %d, want 3", h.results.Count())
	}
}

func TestPersistenceFailureAbortsRun(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "openai/gpt-4o", respond: alwaysValid}
	runner := h.runner(t, stub)

	// A directory at the results path makes the atomic rename fail.
	if err := os.MkdirAll(h.results.Path(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	summary, err := runner.Run(context.Background(), []exercise.Record{testRecord(10)})
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if !errors.Is(err, store.ErrPersist) {
		t.Errorf("error = %v, want ErrPersist", err)
	}
	if !summary.Aborted || summary.AbortReason != "persistence failure" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if h.progress.Has(10) {
		t.Error("progress must not record an unpersisted result")
	}
}

func TestParseFailureLeavesItemPending(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "openai/gpt-4o"}
	stub.respond = func(call int, record exercise.Record) (string, error) {
		if record.ID == 10 {
			return "I cannot produce structured data for this exercise.", nil
		}
		return validPlainPayload, nil
	}
	runner := h.runner(t, stub)

	records := []exercise.Record{testRecord(10), testRecord(20)}
	summary, err := runner.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Failed != 1 || summary.Enriched != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if h.progress.Has(10) || h.results.Has(10) {
		t.Error("rejected output must not be persisted")
	}
	// Parse failures are not retried; one call for each record.
	if len(stub.calls) != 2 {
		t.Errorf("backend called %d times, want 2", len(stub.calls))
	}
}

func TestLimitCapsRun(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "openai/gpt-4o", respond: alwaysValid}
	runner, err := NewRunner(Config{
		Backend:      stub,
		Results:      h.results,
		Progress:     h.progress,
		Logger:       logging.NewNop(),
		MuscleSchema: payload.MuscleSchemaPlain,
		Limit:        2,
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	records := []exercise.Record{testRecord(10), testRecord(20), testRecord(30)}
	summary, runErr := runner.Run(context.Background(), records)
	if runErr != nil {
		t.Fatalf("Run returned error: %v", runErr)
	}
	if summary.Enriched != 2 {
		t.Errorf("enriched = %d, want 2", summary.Enriched)
	}
	if summary.Remaining != 1 {
		t.Errorf("remaining = %d, want 1", summary.Remaining)
	}
	if got := summary.Skipped + summary.Enriched + summary.Failed + summary.Remaining; got != summary.Total {
		t.Errorf("summary counts = %d, want total %d", got, summary.Total)
	}
	if len(stub.calls) != 2 || stub.calls[1] != 20 {
		t.Errorf("backend calls = %v", stub.calls)
	}
}

func TestCancelledContextAbortsBeforeWork(t *testing.T) {
	h := newHarness(t)
	stub := &stubBackend{identity: "openai/gpt-4o", respond: alwaysValid}
	runner := h.runner(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := runner.Run(ctx, []exercise.Record{testRecord(10)})
	if err == nil {
		t.Fatal("expected context error")
	}
	if !summary.Aborted || summary.AbortReason != "interrupted" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(stub.calls) != 0 {
		t.Errorf("backend should not be called, got %v", stub.calls)
	}
}

func TestBackendSwitchWarning(t *testing.T) {
	h := newHarness(t)
	if err := h.progress.MarkProcessed(10, "claude/claude-3-5-sonnet-20241022"); err != nil {
		t.Fatalf("MarkProcessed returned error: %v", err)
	}

	capture := &captureHandler{}
	stub := &stubBackend{identity: "openai/gpt-4o", respond: alwaysValid}
	runner, err := NewRunner(Config{
		Backend:      stub,
		Results:      h.results,
		Progress:     h.progress,
		Logger:       slog.New(capture),
		MuscleSchema: payload.MuscleSchemaPlain,
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	if _, err := runner.Run(context.Background(), []exercise.Record{testRecord(10), testRecord(20)}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !capture.hasMessage("backend changed since last run") {
		t.Errorf("expected backend switch warning, got %v", capture.messages())
	}
}

func TestRunRecordsJournal(t *testing.T) {
	h := newHarness(t)
	j, err := journal.OpenInDir(t.TempDir())
	if err != nil {
		t.Fatalf("OpenInDir returned error: %v", err)
	}
	defer j.Close()

	stub := &stubBackend{identity: "openai/gpt-4o"}
	stub.respond = func(call int, record exercise.Record) (string, error) {
		if record.ID == 20 {
			return "no structured data here", nil
		}
		return validPlainPayload, nil
	}
	runner, err := NewRunner(Config{
		Backend:      stub,
		Results:      h.results,
		Progress:     h.progress,
		Journal:      j,
		Logger:       logging.NewNop(),
		MuscleSchema: payload.MuscleSchemaPlain,
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	summary, err := runner.Run(context.Background(), []exercise.Record{testRecord(10), testRecord(20)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	run, ok, err := j.LastRun(context.Background())
	if err != nil || !ok {
		t.Fatalf("LastRun: %v ok=%v", err, ok)
	}
	if run.ID != summary.RunID || run.Enriched != 1 || run.Failed != 1 {
		t.Errorf("unexpected journaled run: %+v", run)
	}
	failures, err := j.RecentFailures(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentFailures returned error: %v", err)
	}
	if len(failures) != 1 || failures[0].ExerciseID != 20 {
		t.Errorf("unexpected failures: %+v", failures)
	}
	if failures[0].RawSnippet == "" {
		t.Error("parse failure should record the raw snippet")
	}
}

func TestInterruptStillClosesJournalRun(t *testing.T) {
	h := newHarness(t)
	j, err := journal.OpenInDir(t.TempDir())
	if err != nil {
		t.Fatalf("OpenInDir returned error: %v", err)
	}
	defer j.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stub := &stubBackend{identity: "openai/gpt-4o"}
	stub.respond = func(call int, record exercise.Record) (string, error) {
		if record.ID == 20 {
			cancel()
			return "", context.Canceled
		}
		return validPlainPayload, nil
	}
	runner, err := NewRunner(Config{
		Backend:      stub,
		Results:      h.results,
		Progress:     h.progress,
		Journal:      j,
		Logger:       logging.NewNop(),
		MuscleSchema: payload.MuscleSchemaPlain,
	})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	summary, runErr := runner.Run(ctx, []exercise.Record{testRecord(10), testRecord(20)})
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", runErr)
	}
	if !summary.Aborted || summary.AbortReason != "interrupted" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	run, ok, err := j.LastRun(context.Background())
	if err != nil || !ok {
		t.Fatalf("LastRun: %v ok=%v", err, ok)
	}
	if run.FinishedAt == nil {
		t.Error("interrupted run should still be closed in the journal")
	}
	if !run.Aborted || run.AbortReason != "interrupted" {
		t.Errorf("unexpected journaled run: %+v", run)
	}
	if run.Enriched != 1 {
		t.Errorf("enriched = %d, want 1", run.Enriched)
	}
}

type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) hasMessage(fragment string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, record := range h.records {
		if strings.Contains(record.Message, fragment) {
			return true
		}
	}
	return false
}

func (h *captureHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.records))
	for _, record := range h.records {
		out = append(out, record.Message)
	}
	return out
}
