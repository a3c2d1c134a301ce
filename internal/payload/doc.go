// Package payload defines the enrichment payload produced for each
// exercise and the strict decode-or-fail boundary that turns raw model
// output into a validated payload.
package payload
