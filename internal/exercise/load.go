package exercise

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// LoadRecords reads the exercise catalog from a JSON array file. A missing
// or malformed input file is a startup failure; the returned error names
// the path so the operator can fix it without digging further.
func LoadRecords(path string) ([]Record, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("input file path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("input file %s does not exist: copy the exercise catalog there or set paths.input_file", path)
		}
		return nil, fmt.Errorf("read input file %s: %w", path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("input file %s is not a valid JSON array of exercises: %w", path, err)
	}

	seen := make(map[int64]struct{}, len(records))
	for _, record := range records {
		if _, dup := seen[record.ID]; dup {
			return nil, fmt.Errorf("input file %s contains duplicate exercise id %d", path, record.ID)
		}
		seen[record.ID] = struct{}{}
	}

	return records, nil
}
