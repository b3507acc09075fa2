// Package history keeps a ledger of terminal request outcomes.
package history

import (
	"context"

	"github.com/google/uuid"

	"github.com/genericweather/gateway/internal/weather"
)

// DefaultRecentLimit is used when Recent is called with a non-positive limit.
const DefaultRecentLimit = 20

// Repository defines the interface for outcome persistence.
// It satisfies weather.Recorder.
type Repository interface {
	// Record stores an outcome, assigning an ID when it has none.
	Record(ctx context.Context, outcome *weather.Outcome) error

	// Recent returns up to limit outcomes, newest first.
	Recent(ctx context.Context, limit int) ([]*weather.Outcome, error)
}

func newID() string {
	return "out_" + uuid.New().String()[:22]
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
