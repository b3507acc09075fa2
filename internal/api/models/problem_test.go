package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genericweather/gateway/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_test123").
		WithDetail("GW_LATITUDE must be a number").
		WithInstance("/v1/weather").
		WithErrors([]models.FieldError{{Field: "GW_LATITUDE", Message: "not a number", Code: "TYPE"}})

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Equal(t, "GW_LATITUDE must be a number", p.Detail)
	assert.Equal(t, "/v1/weather", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "GW_LATITUDE", p.Errors[0].Field)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "request body is not valid JSON", nil)
	p.Instance = "/v1/weather"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "request body is not valid JSON", result.Detail)
	assert.Equal(t, "/v1/weather", result.Instance)
	assert.Empty(t, result.Errors)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewInternalError("", "boom").Write(w)

	assert.Empty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name       string
		problem    *models.Problem
		wantType   string
		wantTitle  string
		wantStatus int
	}{
		{"not found", models.NewNotFound("req_1", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"method not allowed", models.NewMethodNotAllowed("req_1", "d"), models.ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed},
		{"unsupported media type", models.NewUnsupportedMediaType("req_1", "d"), models.ProblemTypeUnsupportedMediaType, "Unsupported media type", http.StatusUnsupportedMediaType},
		{"too many requests", models.NewTooManyRequests("req_1", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req_1", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
		{"reply timeout", models.NewGatewayTimeout("req_1", "d"), models.ProblemTypeReplyTimeout, "Reply timeout", http.StatusGatewayTimeout},
		{"unmapped status", models.ProblemForStatus(http.StatusConflict, "req_1", "d"), models.ProblemTypeBlank, "Conflict", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.wantTitle, tt.problem.Title)
			assert.Equal(t, tt.wantStatus, tt.problem.Status)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "req_1", tt.problem.TraceID)
		})
	}
}

func TestNewTLSRequired(t *testing.T) {
	p := models.NewTLSRequired("req_1").WithInstance("/v1/weather")

	assert.Equal(t, models.ProblemTypeTLSRequired, p.Type)
	assert.Equal(t, http.StatusForbidden, p.Status)
	assert.Equal(t, "/v1/weather", p.Instance)
	assert.NotEmpty(t, p.Detail)
}

func TestTimestamp_JSON(t *testing.T) {
	ts := models.Timestamp(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-03-01T12:30:00Z"`, string(data))

	var decoded models.Timestamp
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, ts.Time().Equal(decoded.Time()))

	assert.Nil(t, models.TimestampPtr(time.Time{}))
	assert.NotNil(t, models.TimestampPtr(time.Now()))
}
