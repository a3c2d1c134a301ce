package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"liftlore/internal/backend"
	"liftlore/internal/backend/anthropic"
	"liftlore/internal/backend/chatapi"
	"liftlore/internal/backend/gemini"
	"liftlore/internal/config"
	"liftlore/internal/enrich"
	"liftlore/internal/exercise"
	"liftlore/internal/journal"
	"liftlore/internal/logging"
	"liftlore/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var profileFlag string
	var inputFlag string
	var limitFlag int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enrich pending exercises from the input catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runEnrichment(cmd, cfg, profileFlag, inputFlag, limitFlag, dryRun)
		},
	}

	cmd.Flags().StringVar(&profileFlag, "profile", "", "Backend profile overriding the configured one")
	cmd.Flags().StringVar(&inputFlag, "input", "", "Exercise catalog path overriding paths.input_file")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Cap on exercises processed this run (0 = config value)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List pending exercise ids without calling any backend")
	return cmd
}

func runEnrichment(cmd *cobra.Command, cfg *config.Config, profileFlag, inputFlag string, limitFlag int, dryRun bool) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	inputPath := cfg.Paths.InputFile
	if trimmed := strings.TrimSpace(inputFlag); trimmed != "" {
		expanded, err := config.ExpandPath(trimmed)
		if err != nil {
			return err
		}
		inputPath = expanded
		cfg.Paths.InputFile = expanded
	}
	if err := cfg.RequireInput(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	profile, apiKey, err := cfg.BackendSettings(profileFlag)
	if err != nil {
		return err
	}
	if !dryRun && !profile.Local && apiKey == "" {
		return fmt.Errorf("no credential for backend %q: export %s or set [backend.%s] api_key",
			profile.Name, profile.CredentialEnv, profile.Name)
	}

	records, err := exercise.LoadRecords(inputPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		LogFile: filepath.Join(cfg.Paths.LogDir, "liftlore.log"),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	out := cmd.OutOrStdout()

	if dryRun {
		progress, err := store.OpenProgress(cfg.ProgressPath(), logger)
		if err != nil {
			return err
		}
		pendingIDs := make([]int64, 0, len(records))
		for _, record := range records {
			if !progress.Has(record.ID) {
				pendingIDs = append(pendingIDs, record.ID)
			}
		}
		fmt.Fprintf(out, "Catalog: %d exercises, %d processed, %d pending\n",
			len(records), len(records)-len(pendingIDs), len(pendingIDs))
		for _, id := range pendingIDs {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	lockPath := filepath.Join(cfg.Paths.OutputDir, "liftlore.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another liftlore run already owns %s", lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	results, err := store.OpenResults(cfg.ResultsPath(), logger)
	if err != nil {
		return err
	}
	progress, err := store.OpenProgress(cfg.ProgressPath(), logger)
	if err != nil {
		return err
	}

	var runJournal *journal.Journal
	if cfg.Journal.Enabled {
		runJournal, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			logger.Warn("journal unavailable; continuing without run history", logging.Error(err))
			runJournal = nil
		} else {
			defer runJournal.Close()
		}
	}

	client, err := buildBackend(profile, apiKey, cfg.Pipeline.RequestTimeoutSeconds)
	if err != nil {
		return err
	}

	limit := cfg.Pipeline.Limit
	if limitFlag > 0 {
		limit = limitFlag
	}
	runner, err := enrich.NewRunner(enrich.Config{
		Backend:       client,
		Results:       results,
		Progress:      progress,
		Journal:       runJournal,
		Logger:        logger,
		MuscleSchema:  profile.MuscleSchema,
		RetryAttempts: cfg.Pipeline.RetryAttempts,
		RetryDelay:    cfg.RetryDelay(),
		PacingDelay:   cfg.PacingDelay(),
		Limit:         limit,
	})
	if err != nil {
		return err
	}

	summary, runErr := runner.Run(signalCtx, records)
	printSummary(out, summary)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Fprintln(out, "Interrupted; progress saved, rerun to resume.")
			return nil
		}
		return runErr
	}
	return nil
}

func buildBackend(profile backend.Profile, apiKey string, timeoutSeconds int) (backend.Backend, error) {
	switch profile.Kind {
	case backend.KindChatAPI:
		return chatapi.NewClient(chatapi.Config{
			APIKey:         apiKey,
			BaseURL:        profile.BaseURL,
			Model:          profile.Model,
			MaxTokens:      profile.MaxTokens,
			Temperature:    profile.Temperature,
			TopP:           profile.TopP,
			TimeoutSeconds: timeoutSeconds,
			RequireKey:     !profile.Local,
			Identity:       profile.Identity(),
			MuscleSchema:   profile.MuscleSchema,
		})
	case backend.KindAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:         apiKey,
			BaseURL:        profile.BaseURL,
			Model:          profile.Model,
			MaxTokens:      profile.MaxTokens,
			Temperature:    profile.Temperature,
			TimeoutSeconds: timeoutSeconds,
			Identity:       profile.Identity(),
			MuscleSchema:   profile.MuscleSchema,
		})
	case backend.KindGemini:
		return gemini.NewClient(gemini.Config{
			APIKey:       apiKey,
			Model:        profile.Model,
			MaxTokens:    profile.MaxTokens,
			Temperature:  profile.Temperature,
			TopP:         profile.TopP,
			Identity:     profile.Identity(),
			MuscleSchema: profile.MuscleSchema,
		})
	default:
		return nil, fmt.Errorf("profile %q has no client implementation", profile.Name)
	}
}
