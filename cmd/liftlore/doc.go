// Command liftlore enriches gym exercise catalogs with AI-generated
// metadata. Runs are resumable: progress and results live in JSON files
// beside the output, and interrupted or failed items are retried on the
// next run.
package main
