package transport

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/genericweather/gateway/internal/provider/resilience"
)

const meterName = "github.com/genericweather/gateway/internal/transport"

// Upstream call outcomes recorded on provider.request.*.
const (
	OutcomeOK          = "ok"
	OutcomeHTTPError   = "http_error"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeError       = "error"
)

// Metrics holds the instruments for upstream calls, the location fix cache
// and terminal weather outcomes.
type Metrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheLookups    metric.Int64Counter
	outcomes        metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.requestDuration, err = meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of upstream requests in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.requestTotal, err = meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Upstream requests by provider and outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = meter.Int64Counter(
		"provider.cache.lookups",
		metric.WithDescription("Cache lookups by provider and result"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}
	if m.outcomes, err = meter.Int64Counter(
		"weather.outcome.total",
		metric.WithDescription("Terminal weather replies by provider and outcome"),
		metric.WithUnit("{reply}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Classify maps the result of an upstream call to one of the Outcome constants.
func Classify(status int, err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return OutcomeCircuitOpen
	case err != nil:
		return OutcomeError
	case status >= 400:
		return OutcomeHTTPError
	default:
		return OutcomeOK
	}
}

// RecordRequest records one upstream call. status is zero when no response
// was received.
func (m *Metrics) RecordRequest(provider string, status int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("outcome", Classify(status, err)),
	}
	if status > 0 {
		attrs = append(attrs, attribute.String("http.status_code", strconv.Itoa(status)))
	}

	// Recorded even when the request context was canceled.
	ctx := context.Background()
	opt := metric.WithAttributes(attrs...)
	m.requestDuration.Record(ctx, duration.Seconds(), opt)
	m.requestTotal.Add(ctx, 1, opt)
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(provider string, hit bool) {
	m.cacheLookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.Bool("hit", hit),
	))
}

// RecordOutcome counts one terminal reply sent to a display client.
func (m *Metrics) RecordOutcome(provider, outcome string) {
	m.outcomes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("outcome", outcome),
	))
}
