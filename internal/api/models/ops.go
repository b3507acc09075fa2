package models

// Health represents the liveness or readiness of the service.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus is the response of GET /v1/ops/status.
type SystemStatus struct {
	Status         HealthStatus      `json:"status"`
	Time           Timestamp         `json:"time"`
	Subsystems     []SubsystemStatus `json:"subsystems"`
	Providers      []ProviderStatus  `json:"providers"`
	RecentOutcomes []OutcomeSummary  `json:"recentOutcomes"`
}

// SubsystemStatus represents the status of a local dependency.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus reports an upstream client's circuit breaker state.
type ProviderStatus struct {
	Provider            string       `json:"provider"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	Message             *string      `json:"message,omitempty"`
}

// OutcomeSummary is one terminal message recorded by the history ledger.
type OutcomeSummary struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Outcome    string    `json:"outcome"`
	Latitude   int64     `json:"latitude"`
	Longitude  int64     `json:"longitude"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  Timestamp `json:"createdAt"`
}
