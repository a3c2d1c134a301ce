package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"liftlore/internal/enrich"
	"liftlore/internal/exercise"
	"liftlore/internal/journal"
	"liftlore/internal/logging"
	"liftlore/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var showFailures bool
	var failureLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show enrichment progress for the configured catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			progress, err := store.OpenProgress(cfg.ProgressPath(), logging.NewNop())
			if err != nil {
				return err
			}
			results, err := store.OpenResults(cfg.ResultsPath(), logging.NewNop())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Processed", strconv.Itoa(progress.Count())},
				{"Enriched results", strconv.Itoa(results.Count())},
			}
			if cfg.Paths.InputFile != "" {
				if records, err := exercise.LoadRecords(cfg.Paths.InputFile); err == nil {
					rows = append([][]string{
						{"Catalog", strconv.Itoa(len(records))},
					}, rows...)
					rows = append(rows, []string{"Remaining", strconv.Itoa(remaining(records, progress))})
				}
			}
			if identity := progress.BackendIdentity(); identity != "" {
				rows = append(rows, []string{"Backend", identity})
			}
			if updated := progress.LastUpdated(); !updated.IsZero() {
				rows = append(rows, []string{"Last update", updated.Local().Format(time.RFC1123)})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

			if !showFailures {
				return nil
			}
			if !cfg.Journal.Enabled {
				fmt.Fprintln(out, "Journal is disabled; no failure history is recorded.")
				return nil
			}
			return printFailures(cmd, cfg.Journal.Path, failureLimit)
		},
	}

	cmd.Flags().BoolVar(&showFailures, "failures", false, "List recent failed attempts from the journal")
	cmd.Flags().IntVar(&failureLimit, "failure-limit", 20, "Maximum failed attempts to list")
	return cmd
}

func remaining(records []exercise.Record, progress *store.Progress) int {
	count := 0
	for _, record := range records {
		if !progress.Has(record.ID) {
			count++
		}
	}
	return count
}

func printFailures(cmd *cobra.Command, journalPath string, limit int) error {
	out := cmd.OutOrStdout()

	j, err := journal.Open(journalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	failures, err := j.RecentFailures(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		fmt.Fprintln(out, "No failed attempts recorded.")
		return nil
	}

	rows := make([][]string, 0, len(failures))
	for _, failure := range failures {
		rows = append(rows, []string{
			strconv.FormatInt(failure.ExerciseID, 10),
			strconv.Itoa(failure.Attempts),
			failure.Error,
			failure.RecordedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Exercise", "Attempts", "Error", "When"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft}))
	return nil
}

func printSummary(out io.Writer, summary enrich.Summary) {
	rows := [][]string{
		{"Run", summary.RunID},
		{"Backend", summary.Backend},
		{"Catalog", strconv.Itoa(summary.Total)},
		{"Skipped", strconv.Itoa(summary.Skipped)},
		{"Enriched", strconv.Itoa(summary.Enriched)},
		{"Failed", strconv.Itoa(summary.Failed)},
		{"Elapsed", summary.Elapsed.Round(time.Second).String()},
	}
	if summary.Remaining > 0 {
		rows = append(rows, []string{"Remaining", strconv.Itoa(summary.Remaining)})
	}
	if summary.Aborted {
		rows = append(rows, []string{"Aborted", summary.AbortReason})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}
