package config

import (
	"errors"
	"fmt"

	"liftlore/internal/backend"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	if _, err := backend.LookupProfile(c.Backend.Profile); err != nil {
		return fmt.Errorf("backend.profile: %w", err)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.RetryAttempts <= 0 {
		return errors.New("pipeline.retry_attempts must be positive")
	}
	if c.Pipeline.RequestTimeoutSeconds <= 0 {
		return errors.New("pipeline.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

// RequireInput verifies that an input catalog is configured. Commands that
// read the catalog call this; commands that only inspect stores do not.
func (c *Config) RequireInput() error {
	if c.Paths.InputFile == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/liftlore/config.toml"
		}
		return fmt.Errorf("paths.input_file is required. Edit %s (create with 'liftlore config new') or pass --input", defaultPath)
	}
	return nil
}
