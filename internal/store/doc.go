// Package store persists enrichment output and per-run progress as JSON
// files. Both stores rewrite their file atomically after every accepted
// item so an interruption never loses previously persisted work.
package store
