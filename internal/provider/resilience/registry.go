package resilience

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ProviderHealth is the health snapshot of one upstream client.
type ProviderHealth struct {
	// Name is the client name, e.g. "openweathermap" or "nominatim".
	Name string

	CircuitState gobreaker.State
	Counts       gobreaker.Counts

	// LastSuccessAt and LastFailureAt are nil until the first call of that kind.
	LastSuccessAt *time.Time
	LastFailureAt *time.Time

	// LastError is the message of the most recent failure.
	LastError string
}

// IsHealthy reports whether the circuit is closed.
func (h *ProviderHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded reports whether the circuit is half-open.
func (h *ProviderHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy reports whether the circuit is open.
func (h *ProviderHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// HealthReporter is an upstream client that can describe its own health.
// *Client implements it.
type HealthReporter interface {
	Name() string
	Health() *ProviderHealth
}

// Registry is the set of upstream clients reported by the ops endpoints.
type Registry struct {
	mu        sync.RWMutex
	reporters map[string]HealthReporter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{reporters: make(map[string]HealthReporter)}
}

// Register adds r, replacing any reporter of the same name.
func (r *Registry) Register(reporter HealthReporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporters[reporter.Name()] = reporter
}

// Unregister removes the reporter called name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reporters, name)
}

// Health returns the snapshot of the named client, or nil if it is unknown.
func (r *Registry) Health(name string) *ProviderHealth {
	r.mu.RLock()
	reporter, ok := r.reporters[name]
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return reporter.Health()
}

// GetAllHealth returns snapshots of all registered clients, sorted by name.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	reporters := make([]HealthReporter, 0, len(r.reporters))
	for _, reporter := range r.reporters {
		reporters = append(reporters, reporter)
	}
	r.mu.RUnlock()

	health := make([]*ProviderHealth, 0, len(reporters))
	for _, reporter := range reporters {
		health = append(health, reporter.Health())
	}
	slices.SortFunc(health, func(a, b *ProviderHealth) int {
		return strings.Compare(a.Name, b.Name)
	})
	return health
}

// Unhealthy returns the names of clients whose circuit is open.
func (r *Registry) Unhealthy() []string {
	var names []string
	for _, h := range r.GetAllHealth() {
		if h.IsUnhealthy() {
			names = append(names, h.Name)
		}
	}
	return names
}

// Names returns the registered client names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.reporters))
	for name := range r.reporters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reporters)
}
