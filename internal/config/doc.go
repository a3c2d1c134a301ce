// Package config loads, normalizes, and validates liftlore configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and resolves backend credentials from
// per-profile overrides or the profile's environment variable. Always
// obtain settings through this package so downstream code receives
// sanitized paths, a known profile, and clear validation errors.
package config
