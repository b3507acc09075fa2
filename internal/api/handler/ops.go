// Package handler provides HTTP handlers for the weather gateway API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/api/models"
	"github.com/genericweather/gateway/internal/api/response"
	"github.com/genericweather/gateway/internal/provider/resilience"
	"github.com/genericweather/gateway/internal/weather"
)

// recentOutcomes is how many history entries the status endpoint shows.
const recentOutcomes = 20

// HealthSource reports upstream client health.
type HealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// OutcomeSource lists recent terminal outcomes.
type OutcomeSource interface {
	Recent(ctx context.Context, limit int) ([]*weather.Outcome, error)
}

// Pinger checks a dependency such as the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeSource summarizes scheduled provider probes.
type ProbeSource interface {
	MetricsSnapshot() map[string]any
}

// OpsConfig holds the dependencies of OpsHandler. Every field except the
// build metadata is optional.
type OpsConfig struct {
	Version   string
	BuildTime string
	Health    HealthSource
	History   OutcomeSource

	// Database is checked by the readiness probe when set.
	Database Pinger

	Probe ProbeSource

	Logger zerolog.Logger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// ProbeStatus handles GET /v1/ops/probe.
func (h *OpsHandler) ProbeStatus(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Probe == nil {
		response.NotFound(w, r, "provider probes are not scheduled in this process")
		return
	}
	response.JSON(w, r, http.StatusOK, h.cfg.Probe.MetricsSnapshot())
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The gateway is ready when its
// database (if any) answers a ping.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.cfg.Database.Ping(ctx); err != nil {
			h.cfg.Logger.Warn().Err(err).Msg("readiness check failed")
			response.ServiceUnavailable(w, r, "database unavailable")
			return
		}
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - upstream circuit state and the
// most recent request outcomes. Overall status is DEGRADED while any
// upstream is not healthy and FAIL when every upstream circuit is open.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:         models.HealthStatusOK,
		Time:           models.Timestamp(time.Now()),
		Subsystems:     []models.SubsystemStatus{},
		Providers:      []models.ProviderStatus{},
		RecentOutcomes: []models.OutcomeSummary{},
	}

	if h.cfg.Health != nil {
		open := 0
		for _, ph := range h.cfg.Health.GetAllHealth() {
			ps := providerStatus(ph)
			if ph.IsUnhealthy() {
				open++
			}
			if ps.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, ps)
		}
		if open > 0 && open == len(status.Providers) {
			status.Status = models.HealthStatusFail
		}
	}

	if h.cfg.Database != nil {
		status.Subsystems = append(status.Subsystems, h.pingSubsystem(r.Context(), "postgres", h.cfg.Database))
	}

	if h.cfg.History != nil {
		outcomes, err := h.cfg.History.Recent(r.Context(), recentOutcomes)
		if err != nil {
			h.cfg.Logger.Warn().Err(err).Msg("failed to load recent outcomes")
			detail := err.Error()
			status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
				Name:   "history",
				Status: models.HealthStatusFail,
				Detail: &detail,
			})
		} else {
			status.Subsystems = append(status.Subsystems, models.SubsystemStatus{Name: "history", Status: models.HealthStatusOK})
			for _, o := range outcomes {
				status.RecentOutcomes = append(status.RecentOutcomes, outcomeSummary(o))
			}
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingSubsystem(ctx context.Context, name string, p Pinger) models.SubsystemStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		detail := err.Error()
		return models.SubsystemStatus{Name: name, Status: models.HealthStatusFail, Detail: &detail}
	}
	return models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            ph.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        ph.CircuitState.String(),
		ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
	}
	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if ph.LastSuccessAt != nil {
		ps.LastSuccessAt = models.TimestampPtr(*ph.LastSuccessAt)
	}
	if ph.LastFailureAt != nil {
		ps.LastFailureAt = models.TimestampPtr(*ph.LastFailureAt)
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

func outcomeSummary(o *weather.Outcome) models.OutcomeSummary {
	return models.OutcomeSummary{
		ID:         o.ID,
		Provider:   o.Provider.String(),
		Outcome:    string(o.Kind),
		Latitude:   o.Latitude,
		Longitude:  o.Longitude,
		DurationMS: o.Duration.Milliseconds(),
		CreatedAt:  models.Timestamp(o.CreatedAt),
	}
}
