// Package enrich drives the enrichment pipeline: it walks the exercise
// catalog in order, skips already processed items, calls the configured
// backend with retry and pacing, validates the generated payload, and
// persists each result durably before marking progress.
package enrich
