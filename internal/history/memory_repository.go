package history

import (
	"context"
	"sync"

	"github.com/genericweather/gateway/internal/weather"
)

// DefaultCapacity is the number of outcomes an InMemoryRepository keeps.
const DefaultCapacity = 1000

// InMemoryRepository is an in-memory implementation of Repository.
// It keeps the most recent outcomes up to its capacity.
type InMemoryRepository struct {
	mu       sync.RWMutex
	outcomes []*weather.Outcome
	capacity int
}

// NewInMemoryRepository creates a new in-memory outcome repository.
func NewInMemoryRepository(capacity int) *InMemoryRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &InMemoryRepository{
		outcomes: make([]*weather.Outcome, 0, capacity),
		capacity: capacity,
	}
}

// Record stores an outcome, evicting the oldest one when full.
func (r *InMemoryRepository) Record(_ context.Context, outcome *weather.Outcome) error {
	cpy := *outcome
	if cpy.ID == "" {
		cpy.ID = newID()
		outcome.ID = cpy.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.outcomes) == r.capacity {
		copy(r.outcomes, r.outcomes[1:])
		r.outcomes = r.outcomes[:len(r.outcomes)-1]
	}
	r.outcomes = append(r.outcomes, &cpy)
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (r *InMemoryRepository) Recent(_ context.Context, limit int) ([]*weather.Outcome, error) {
	limit = normalizeLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := min(limit, len(r.outcomes))
	result := make([]*weather.Outcome, 0, n)
	for i := len(r.outcomes) - 1; i >= 0 && len(result) < n; i-- {
		cpy := *r.outcomes[i]
		result = append(result, &cpy)
	}
	return result, nil
}
