package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"liftlore/internal/exercise"
	"liftlore/internal/logging"
	"liftlore/internal/payload"
)

// EnrichedRecord is one fully enriched exercise as persisted in the result
// store. Original catalog fields are carried through under original_*
// names; the record is created once per exercise id and only replaced by a
// full reprocessing of that id.
type EnrichedRecord struct {
	ID                   int64                `json:"id"`
	UUID                 string               `json:"uuid"`
	OriginalCategory     exercise.Category    `json:"original_category"`
	OriginalEquipment    []exercise.Equipment `json:"original_equipment"`
	OriginalTranslations []json.RawMessage    `json:"original_translations"`
	EnrichedData         payload.Payload      `json:"enriched_data"`
	ProcessedAt          time.Time            `json:"processed_at"`
	BackendIdentity      string               `json:"backend_identity"`
}

// NewEnrichedRecord combines a catalog record with its validated payload.
func NewEnrichedRecord(record exercise.Record, data payload.Payload, backendIdentity string, processedAt time.Time) EnrichedRecord {
	return EnrichedRecord{
		ID:                   record.ID,
		UUID:                 record.UUID,
		OriginalCategory:     record.Category,
		OriginalEquipment:    record.Equipment,
		OriginalTranslations: record.Translations,
		EnrichedData:         data,
		ProcessedAt:          processedAt,
		BackendIdentity:      backendIdentity,
	}
}

// Results is the durable collection of enriched records. The backing file
// is a JSON array rewritten in full after each Put.
type Results struct {
	path    string
	logger  *slog.Logger
	records []EnrichedRecord
	byID    map[int64]int
}

// OpenResults loads the result store, creating an empty one when the file
// does not exist yet. A malformed file is a startup error: silently
// starting over would orphan the progress store's processed set.
func OpenResults(path string, logger *slog.Logger) (*Results, error) {
	r := &Results{
		path:   path,
		logger: logging.NewComponentLogger(logger, "results"),
		byID:   make(map[int64]int),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read result store %s: %w", path, err)
	}
	if len(data) == 0 {
		return r, nil
	}

	if err := json.Unmarshal(data, &r.records); err != nil {
		return nil, fmt.Errorf("result store %s is corrupt: %w (move it aside to start fresh)", path, err)
	}
	for i, record := range r.records {
		r.byID[record.ID] = i
	}

	r.logger.Debug("loaded result store",
		logging.Int("record_count", len(r.records)),
		logging.String("path", path))
	return r, nil
}

// Put inserts or replaces the record for its exercise id and persists the
// full collection before returning.
func (r *Results) Put(record EnrichedRecord) error {
	if i, exists := r.byID[record.ID]; exists {
		r.records[i] = record
	} else {
		r.byID[record.ID] = len(r.records)
		r.records = append(r.records, record)
	}
	return r.persist()
}

// Get returns the stored record for an exercise id.
func (r *Results) Get(id int64) (EnrichedRecord, bool) {
	if i, ok := r.byID[id]; ok {
		return r.records[i], true
	}
	return EnrichedRecord{}, false
}

// Has reports whether an exercise id is present.
func (r *Results) Has(id int64) bool {
	_, ok := r.byID[id]
	return ok
}

// Count returns the number of stored records.
func (r *Results) Count() int {
	return len(r.records)
}

// All returns the stored records in processing order.
func (r *Results) All() []EnrichedRecord {
	cp := make([]EnrichedRecord, len(r.records))
	copy(cp, r.records)
	return cp
}

// Path returns the backing file location.
func (r *Results) Path() string {
	return r.path
}

func (r *Results) persist() error {
	data, err := marshalIndented(r.records)
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path, data)
}
