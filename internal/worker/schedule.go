package worker

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// DefaultProbeInterval is used when no interval is configured.
const DefaultProbeInterval = 15 * time.Minute

// ProbeScheduler runs a ProbeJob on a fixed interval. Runs never overlap; a
// run still in progress when the next one is due causes that one to be skipped.
type ProbeScheduler struct {
	scheduler *gocron.Scheduler
	job       *ProbeJob
	interval  time.Duration
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewProbeScheduler creates a scheduler for job.
func NewProbeScheduler(job *ProbeJob, interval time.Duration, logger zerolog.Logger) *ProbeScheduler {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &ProbeScheduler{
		scheduler: s,
		job:       job,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the probe, runs it once immediately and returns.
func (s *ProbeScheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).Do(func() {
		result := s.job.Run(s.ctx)
		s.logger.Info().
			Int("successful", result.Successful).
			Int("failed", result.Failed).
			Fields(s.job.MetricsSnapshot()).
			Msg("scheduled probe finished")
	})
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("probe scheduler started")
	s.scheduler.StartAsync()
	return nil
}

// Stop cancels a running probe and stops future runs.
func (s *ProbeScheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}
