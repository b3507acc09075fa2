package worker_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/genericweather/gateway/internal/weather"
	"github.com/genericweather/gateway/internal/worker"
)

func TestProbeScheduler_RunsImmediately(t *testing.T) {
	owm := &recordingProvider{name: "owm"}
	svc := weather.NewService(weather.ServiceConfig{
		Providers: map[weather.ProviderID]weather.Provider{weather.ProviderOpenWeatherMap: owm},
		Logger:    zerolog.Nop(),
	})
	job := worker.NewProbeJob(worker.ProbeJobConfig{
		Config:  worker.ProbeConfig{Locations: testLocations()[:1]},
		Service: svc,
	})

	s := worker.NewProbeScheduler(job, time.Hour, zerolog.Nop())
	assert.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.GetMetrics().TotalRuns == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, owm.callCount())
}
