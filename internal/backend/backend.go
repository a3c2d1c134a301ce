package backend

import (
	"context"

	"liftlore/internal/exercise"
)

// Backend turns one exercise record into raw model output. Implementations
// classify failures with the sentinel errors in this package; they perform
// a single attempt per call; retry policy belongs to the caller.
type Backend interface {
	// Identity returns the profile tag recorded alongside results, e.g.
	// "openai/gpt-4o".
	Identity() string
	// Generate produces the raw enrichment text for one exercise.
	Generate(ctx context.Context, record exercise.Record) (string, error)
}
