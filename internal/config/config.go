package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"liftlore/internal/backend"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory configuration.
type Paths struct {
	InputFile    string `toml:"input_file"`
	OutputDir    string `toml:"output_dir"`
	ResultsFile  string `toml:"results_file"`
	ProgressFile string `toml:"progress_file"`
	LogDir       string `toml:"log_dir"`
}

// BackendOverride adjusts one enumerated profile.
type BackendOverride struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// Backend selects the enrichment profile and carries per-profile overrides.
type Backend struct {
	Profile string          `toml:"profile"`
	Claude  BackendOverride `toml:"claude"`
	OpenAI  BackendOverride `toml:"openai"`
	Groq    BackendOverride `toml:"groq"`
	Gemini  BackendOverride `toml:"gemini"`
	Local   BackendOverride `toml:"local"`
}

// Pipeline contains retry and pacing settings.
type Pipeline struct {
	RetryAttempts         int `toml:"retry_attempts"`
	RetryDelaySeconds     int `toml:"retry_delay_seconds"`
	PacingDelaySeconds    int `toml:"pacing_delay_seconds"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	Limit                 int `toml:"limit"`
}

// Journal contains configuration for the run diagnostics database.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for liftlore.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Backend  Backend  `toml:"backend"`
	Pipeline Pipeline `toml:"pipeline"`
	Journal  Journal  `toml:"journal"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/liftlore/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("liftlore.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ResultsPath returns the enriched output file location.
func (c *Config) ResultsPath() string {
	return filepath.Join(c.Paths.OutputDir, c.Paths.ResultsFile)
}

// ProgressPath returns the progress file location.
func (c *Config) ProgressPath() string {
	return filepath.Join(c.Paths.OutputDir, c.Paths.ProgressFile)
}

// RetryDelay returns the delay between retries of a transient failure.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryDelaySeconds) * time.Second
}

// PacingDelay returns the delay between consecutive backend calls.
func (c *Config) PacingDelay() time.Duration {
	return time.Duration(c.Pipeline.PacingDelaySeconds) * time.Second
}

// RequestTimeout returns the per-request timeout for HTTP backends.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Pipeline.RequestTimeoutSeconds) * time.Second
}

// BackendSettings resolves the named profile with config overrides applied
// and returns it together with the API key from the override or the
// profile's environment variable. An empty profileName selects the
// configured profile.
func (c *Config) BackendSettings(profileName string) (backend.Profile, string, error) {
	name := strings.ToLower(strings.TrimSpace(profileName))
	if name == "" {
		name = c.Backend.Profile
	}
	profile, err := backend.LookupProfile(name)
	if err != nil {
		return backend.Profile{}, "", err
	}

	override := c.override(profile.Name)
	if model := strings.TrimSpace(override.Model); model != "" {
		profile.Model = model
	}
	if baseURL := strings.TrimSpace(override.BaseURL); baseURL != "" {
		profile.BaseURL = baseURL
	}

	apiKey := strings.TrimSpace(override.APIKey)
	if apiKey == "" && profile.CredentialEnv != "" {
		apiKey = strings.TrimSpace(os.Getenv(profile.CredentialEnv))
	}
	return profile, apiKey, nil
}

func (c *Config) override(name backend.ProfileName) BackendOverride {
	switch name {
	case backend.ProfileClaude:
		return c.Backend.Claude
	case backend.ProfileOpenAI:
		return c.Backend.OpenAI
	case backend.ProfileGroq:
		return c.Backend.Groq
	case backend.ProfileGemini:
		return c.Backend.Gemini
	case backend.ProfileLocal:
		return c.Backend.Local
	default:
		return BackendOverride{}
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration.
func Sample() string {
	return sampleConfig
}
