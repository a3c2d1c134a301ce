package config

const (
	defaultOutputDir             = "~/.local/share/liftlore/output"
	defaultLogDir                = "~/.local/share/liftlore/logs"
	defaultResultsFile           = "enriched_exercises.json"
	defaultProgressFile          = "enrichment_progress.json"
	defaultProfile               = "claude"
	defaultRetryAttempts         = 3
	defaultRetryDelaySeconds     = 2
	defaultPacingDelaySeconds    = 1
	defaultRequestTimeoutSeconds = 60
	defaultJournalEnabled        = true
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:    defaultOutputDir,
			ResultsFile:  defaultResultsFile,
			ProgressFile: defaultProgressFile,
			LogDir:       defaultLogDir,
		},
		Backend: Backend{
			Profile: defaultProfile,
		},
		Pipeline: Pipeline{
			RetryAttempts:         defaultRetryAttempts,
			RetryDelaySeconds:     defaultRetryDelaySeconds,
			PacingDelaySeconds:    defaultPacingDelaySeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Journal: Journal{
			Enabled: defaultJournalEnabled,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
