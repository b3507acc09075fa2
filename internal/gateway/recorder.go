package gateway

import (
	"context"

	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
)

// meteredRecorder counts each terminal outcome before storing it.
type meteredRecorder struct {
	next    weather.Recorder
	metrics *transport.Metrics
}

func (r meteredRecorder) Record(ctx context.Context, outcome *weather.Outcome) error {
	r.metrics.RecordOutcome(outcome.Provider.String(), string(outcome.Kind))
	return r.next.Record(ctx, outcome)
}

func recorderFor(repo weather.Recorder, metrics *transport.Metrics) weather.Recorder {
	if metrics == nil {
		return repo
	}
	return meteredRecorder{next: repo, metrics: metrics}
}
