package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genericweather/gateway/internal/api/handler"
	"github.com/genericweather/gateway/internal/api/models"
	"github.com/genericweather/gateway/internal/history"
	"github.com/genericweather/gateway/internal/provider/resilience"
	"github.com/genericweather/gateway/internal/weather"
)

type staticHealth []*resilience.ProviderHealth

func (s staticHealth) GetAllHealth() []*resilience.ProviderHealth { return s }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type failingHistory struct{}

func (failingHistory) Recent(context.Context, int) ([]*weather.Outcome, error) {
	return nil, errors.New("connection refused")
}

func getJSON(t *testing.T, fn http.HandlerFunc, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestOpsHandler_HealthCheck(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{Version: "1.2.3", BuildTime: "2024-01-01T00:00:00Z"})

	var health models.Health
	code := getJSON(t, h.HealthCheck, "/v1/ops/health", &health)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "1.2.3", health.Details["version"])
}

func TestOpsHandler_ReadinessCheck(t *testing.T) {
	ready := handler.NewOpsHandler(handler.OpsConfig{Database: pinger{}})
	assert.Equal(t, http.StatusOK, getJSON(t, ready.ReadinessCheck, "/v1/ops/ready", nil))

	noDB := handler.NewOpsHandler(handler.OpsConfig{})
	assert.Equal(t, http.StatusOK, getJSON(t, noDB.ReadinessCheck, "/v1/ops/ready", nil))

	down := handler.NewOpsHandler(handler.OpsConfig{Database: pinger{err: errors.New("dial tcp: refused")}, Logger: zerolog.Nop()})
	var problem models.Problem
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, down.ReadinessCheck, "/v1/ops/ready", &problem))
	assert.Equal(t, models.ProblemTypeUnavailable, problem.Type)
}

func TestOpsHandler_SystemStatus(t *testing.T) {
	lastSuccess := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	health := staticHealth{
		{Name: "forecastio", CircuitState: gobreaker.StateHalfOpen, LastError: "server error: status 503"},
		{Name: "openweathermap", CircuitState: gobreaker.StateClosed, LastSuccessAt: &lastSuccess},
	}

	repo := history.NewInMemoryRepository(10)
	require.NoError(t, repo.Record(context.Background(), &weather.Outcome{
		Provider:  weather.ProviderOpenWeatherMap,
		Kind:      weather.OutcomeOK,
		Latitude:  4071280,
		Longitude: -7400600,
		Duration:  150 * time.Millisecond,
		CreatedAt: lastSuccess,
	}))

	h := handler.NewOpsHandler(handler.OpsConfig{Health: health, History: repo, Logger: zerolog.Nop()})

	var status models.SystemStatus
	code := getJSON(t, h.SystemStatus, "/v1/ops/status", &status)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	require.Len(t, status.Providers, 2)
	assert.Equal(t, "forecastio", status.Providers[0].Provider)
	assert.Equal(t, models.HealthStatusDegraded, status.Providers[0].Status)
	assert.Equal(t, "half-open", status.Providers[0].CircuitState)
	require.NotNil(t, status.Providers[0].Message)
	assert.Equal(t, "server error: status 503", *status.Providers[0].Message)
	assert.Equal(t, models.HealthStatusOK, status.Providers[1].Status)
	require.NotNil(t, status.Providers[1].LastSuccessAt)
	assert.True(t, lastSuccess.Equal(status.Providers[1].LastSuccessAt.Time()))

	require.Len(t, status.RecentOutcomes, 1)
	outcome := status.RecentOutcomes[0]
	assert.NotEmpty(t, outcome.ID)
	assert.Equal(t, "openweathermap", outcome.Provider)
	assert.Equal(t, "ok", outcome.Outcome)
	assert.Equal(t, int64(4071280), outcome.Latitude)
	assert.Equal(t, int64(150), outcome.DurationMS)

	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "history", status.Subsystems[0].Name)
}

func TestOpsHandler_SystemStatusAllCircuitsOpen(t *testing.T) {
	health := staticHealth{
		{Name: "openweathermap", CircuitState: gobreaker.StateOpen},
		{Name: "yahoo", CircuitState: gobreaker.StateOpen},
	}
	h := handler.NewOpsHandler(handler.OpsConfig{Health: health, History: failingHistory{}, Database: pinger{}, Logger: zerolog.Nop()})

	var status models.SystemStatus
	require.Equal(t, http.StatusOK, getJSON(t, h.SystemStatus, "/v1/ops/status", &status))

	assert.Equal(t, models.HealthStatusFail, status.Status)
	assert.Empty(t, status.RecentOutcomes)

	require.Len(t, status.Subsystems, 2)
	assert.Equal(t, "postgres", status.Subsystems[0].Name)
	assert.Equal(t, models.HealthStatusOK, status.Subsystems[0].Status)
	assert.Equal(t, "history", status.Subsystems[1].Name)
	assert.Equal(t, models.HealthStatusFail, status.Subsystems[1].Status)
}

func TestOpsHandler_SystemStatusEmpty(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{})

	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(extract(t, rec.Body.Bytes(), "providers")))
	assert.JSONEq(t, `[]`, string(extract(t, rec.Body.Bytes(), "recentOutcomes")))
}

func extract(t *testing.T, body []byte, key string) json.RawMessage {
	t.Helper()
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &doc))
	return doc[key]
}

type probeSnapshot map[string]any

func (p probeSnapshot) MetricsSnapshot() map[string]any { return p }

func TestOpsHandler_ProbeStatus(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{Probe: probeSnapshot{"total_runs": 3}})

	var body map[string]any
	code := getJSON(t, h.ProbeStatus, "/v1/ops/probe", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 3, body["total_runs"], 0)

	missing := handler.NewOpsHandler(handler.OpsConfig{})
	assert.Equal(t, http.StatusNotFound, getJSON(t, missing.ProbeStatus, "/v1/ops/probe", nil))
}
