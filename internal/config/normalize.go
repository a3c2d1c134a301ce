package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackend()
	c.normalizePipeline()
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.InputFile) != "" {
		if c.Paths.InputFile, err = expandPath(c.Paths.InputFile); err != nil {
			return fmt.Errorf("paths.input_file: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.ResultsFile = strings.TrimSpace(c.Paths.ResultsFile)
	if c.Paths.ResultsFile == "" {
		c.Paths.ResultsFile = defaultResultsFile
	}
	c.Paths.ProgressFile = strings.TrimSpace(c.Paths.ProgressFile)
	if c.Paths.ProgressFile == "" {
		c.Paths.ProgressFile = defaultProgressFile
	}
	return nil
}

func (c *Config) normalizeBackend() {
	c.Backend.Profile = strings.ToLower(strings.TrimSpace(c.Backend.Profile))
	if c.Backend.Profile == "" {
		c.Backend.Profile = defaultProfile
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = defaultRetryAttempts
	}
	if c.Pipeline.RetryDelaySeconds < 0 {
		c.Pipeline.RetryDelaySeconds = 0
	}
	if c.Pipeline.PacingDelaySeconds < 0 {
		c.Pipeline.PacingDelaySeconds = 0
	}
	if c.Pipeline.RequestTimeoutSeconds <= 0 {
		c.Pipeline.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Pipeline.Limit < 0 {
		c.Pipeline.Limit = 0
	}
}

func (c *Config) normalizeJournal() error {
	var err error
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = filepath.Join(c.Paths.OutputDir, "journal.db")
		return nil
	}
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
