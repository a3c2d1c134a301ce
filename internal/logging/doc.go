// Package logging provides slog-based structured logging with console and
// JSON output formats plus shared attribute helpers.
package logging
