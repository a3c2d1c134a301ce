package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPersist marks failures to write a store file. Callers must treat
// these as fatal: continuing after a failed write would leave the progress
// and result files inconsistent with each other.
var ErrPersist = errors.New("persistence error")

// writeFileAtomic writes data via a temp file and rename so a crash mid
// write never leaves a truncated store behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", ErrPersist, dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: write temp file: %w", ErrPersist, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename temp file: %w", ErrPersist, err)
	}
	return nil
}

func marshalIndented(value any) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %w", ErrPersist, err)
	}
	return append(data, '\n'), nil
}
