package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"liftlore/internal/logging"
)

// State is the persisted progress snapshot. TotalProcessed is derivable
// from the id list but cached so the file is self-describing.
type State struct {
	ProcessedIDs    []int64   `json:"processed_exercise_ids"`
	LastUpdated     time.Time `json:"last_updated"`
	TotalProcessed  int       `json:"total_processed"`
	BackendIdentity string    `json:"backend_identity"`
}

// Progress tracks which exercise ids have been fully enriched. The backing
// file is a single JSON object rewritten after every successful item.
type Progress struct {
	path      string
	logger    *slog.Logger
	state     State
	processed map[int64]struct{}
}

// OpenProgress loads the progress store, starting empty when no file
// exists. A malformed file is a startup error for the same reason as the
// result store: guessing would break resumability guarantees.
func OpenProgress(path string, logger *slog.Logger) (*Progress, error) {
	p := &Progress{
		path:      path,
		logger:    logging.NewComponentLogger(logger, "progress"),
		processed: make(map[int64]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("read progress store %s: %w", path, err)
	}
	if len(data) == 0 {
		return p, nil
	}

	if err := json.Unmarshal(data, &p.state); err != nil {
		return nil, fmt.Errorf("progress store %s is corrupt: %w (move it aside to start fresh)", path, err)
	}
	for _, id := range p.state.ProcessedIDs {
		p.processed[id] = struct{}{}
	}

	p.logger.Debug("loaded progress store",
		logging.Int("processed_count", len(p.processed)),
		logging.String(logging.FieldBackend, p.state.BackendIdentity),
		logging.String("path", path))
	return p, nil
}

// Has reports whether an exercise id has already been processed.
func (p *Progress) Has(id int64) bool {
	_, ok := p.processed[id]
	return ok
}

// Count returns the number of processed ids.
func (p *Progress) Count() int {
	return len(p.processed)
}

// BackendIdentity returns the backend tag recorded by the last run.
func (p *Progress) BackendIdentity() string {
	return p.state.BackendIdentity
}

// LastUpdated returns the time of the most recent successful item.
func (p *Progress) LastUpdated() time.Time {
	return p.state.LastUpdated
}

// Snapshot returns a copy of the persisted state.
func (p *Progress) Snapshot() State {
	cp := p.state
	cp.ProcessedIDs = append([]int64{}, p.state.ProcessedIDs...)
	return cp
}

// Path returns the backing file location.
func (p *Progress) Path() string {
	return p.path
}

// MarkProcessed records an exercise id as fully enriched and persists the
// updated state before returning. Marking an id twice is a no-op apart
// from refreshing the timestamp.
func (p *Progress) MarkProcessed(id int64, backendIdentity string) error {
	if _, exists := p.processed[id]; !exists {
		p.processed[id] = struct{}{}
		p.state.ProcessedIDs = append(p.state.ProcessedIDs, id)
	}
	p.state.TotalProcessed = len(p.state.ProcessedIDs)
	p.state.LastUpdated = time.Now().UTC()
	p.state.BackendIdentity = backendIdentity
	return p.persist()
}

func (p *Progress) persist() error {
	data, err := marshalIndented(p.state)
	if err != nil {
		return err
	}
	return writeFileAtomic(p.path, data)
}
