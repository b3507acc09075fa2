package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/weather"
)

// Probe failure reasons.
var (
	ErrProbeBadKey              = errors.New("provider reported bad key or fetch failure")
	ErrProbeLocationUnavailable = errors.New("location unavailable")
	ErrProbeNoReply             = errors.New("no reply")
	ErrProbeTimeout             = errors.New("probe timed out")
)

// ProbeService is the orchestrator surface the probe needs.
type ProbeService interface {
	HandleWithOverrides(ctx context.Context, payload weather.Message, overrides weather.Overrides, reply weather.Channel) <-chan struct{}
	ProviderIDs() []weather.ProviderID
}

// ProbeJob sends synthetic requests through the orchestrator for every
// provider and location and classifies the replies the way a display client
// would. Replies never leave the process.
type ProbeJob struct {
	config  ProbeConfig
	service ProbeService
	logger  zerolog.Logger

	metrics *ProbeMetrics
}

// ProbeMetrics tracks probe statistics across runs.
type ProbeMetrics struct {
	mu sync.RWMutex

	TotalRuns   int64
	Successful  int64
	Failed      int64
	PerProvider map[string]ProviderProbeStats

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// ProviderProbeStats counts probe outcomes of one provider.
type ProviderProbeStats struct {
	Successful int64
	Failed     int64
	LastError  string
}

// ProbeJobConfig holds configuration for creating a ProbeJob.
type ProbeJobConfig struct {
	Config  ProbeConfig
	Service ProbeService
	Logger  zerolog.Logger
}

// NewProbeJob creates a new probe job.
func NewProbeJob(cfg ProbeJobConfig) *ProbeJob {
	config := cfg.Config
	defaults := DefaultProbeConfig()
	if len(config.Locations) == 0 {
		config.Locations = defaults.Locations
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &ProbeJob{
		config:  config,
		service: cfg.Service,
		logger:  cfg.Logger,
		metrics: &ProbeMetrics{PerProvider: make(map[string]ProviderProbeStats)},
	}
}

// ProbeResult contains the result of one probe run.
type ProbeResult struct {
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	TotalProbes int
	Successful  int
	Failed      int
	Errors      []ProbeError
}

// ProbeError describes a failed probe.
type ProbeError struct {
	Provider weather.ProviderID
	Location ProbeLocation
	Err      error
}

func (e ProbeError) Error() string {
	return e.Provider.String() + " @ " + e.Location.Name + ": " + e.Err.Error()
}

// Unwrap returns the failure reason.
func (e ProbeError) Unwrap() error {
	return e.Err
}

type probeOutcome struct {
	target ProbeTarget
	err    error
}

// Run probes every target once and returns the summary.
func (j *ProbeJob) Run(ctx context.Context) *ProbeResult {
	providers := j.config.Providers
	if len(providers) == 0 {
		providers = j.service.ProviderIDs()
	}
	targets := j.config.Targets(providers)

	startTime := time.Now()
	result := &ProbeResult{
		StartTime:   startTime,
		TotalProbes: len(targets),
	}

	j.logger.Info().
		Int("total_probes", result.TotalProbes).
		Int("concurrency", j.config.Concurrency).
		Msg("starting provider probe")

	work := make(chan ProbeTarget, len(targets))
	outcomes := make(chan probeOutcome, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range work {
				if ctx.Err() != nil {
					outcomes <- probeOutcome{target: target, err: ctx.Err()}
					continue
				}
				outcomes <- probeOutcome{target: target, err: j.probe(ctx, target)}
			}
		}()
	}

	for _, t := range targets {
		work <- t
	}
	close(work)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		if o.err == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, ProbeError{
			Provider: o.target.Provider,
			Location: o.target.Location,
			Err:      o.err,
		})
		j.logger.Warn().
			Str("provider", o.target.Provider.String()).
			Str("location", o.target.Location.Name).
			Err(o.err).
			Msg("probe failed")
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result, targets)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("provider probe completed")

	return result
}

func (j *ProbeJob) probe(ctx context.Context, target ProbeTarget) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	lat, lon := target.Location.Coordinates.Scaled()
	payload := weather.Message{
		weather.KeyRequest:   1,
		weather.KeyProvider:  int(target.Provider),
		weather.KeyAPIKey:    j.config.APIKeys[target.Provider],
		weather.KeyForecast:  j.config.Forecast,
		weather.KeyLatitude:  lat,
		weather.KeyLongitude: lon,
	}

	replies := make(chan weather.Message, 1)
	sink := weather.ChannelFunc(func(_ context.Context, msg weather.Message) error {
		select {
		case replies <- msg:
		default:
		}
		return nil
	})

	// Probes pin provider and location, so operator overrides do not apply.
	done := j.service.HandleWithOverrides(ctx, payload, weather.Overrides{}, sink)
	if done == nil {
		return ErrProbeNoReply
	}

	var msg weather.Message
	select {
	case msg = <-replies:
	case <-done:
		select {
		case msg = <-replies:
		default:
			return ErrProbeNoReply
		}
	case <-ctx.Done():
		return ErrProbeTimeout
	}

	reply, status := weather.DecodeReply(msg)
	switch status {
	case weather.StatusAvailable:
		j.logger.Debug().
			Str("provider", target.Provider.String()).
			Str("location", target.Location.Name).
			Str("description", reply.Description).
			Int("temp_c", reply.TempC).
			Int("forecast_slots", len(reply.Forecast)).
			Msg("probe succeeded")
		return nil
	case weather.StatusBadKey:
		return ErrProbeBadKey
	case weather.StatusLocationUnavailable:
		return ErrProbeLocationUnavailable
	default:
		return ErrProbeNoReply
	}
}

func (j *ProbeJob) updateMetrics(result *ProbeResult, targets []ProbeTarget) {
	failed := make(map[weather.ProviderID]int64)
	lastErr := make(map[weather.ProviderID]string)
	for _, e := range result.Errors {
		failed[e.Provider]++
		lastErr[e.Provider] = e.Err.Error()
	}
	total := make(map[weather.ProviderID]int64)
	for _, t := range targets {
		total[t.Provider]++
	}

	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.Successful += int64(result.Successful)
	j.metrics.Failed += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration

	for p, n := range total {
		stats := j.metrics.PerProvider[p.String()]
		stats.Successful += n - failed[p]
		stats.Failed += failed[p]
		if msg, ok := lastErr[p]; ok {
			stats.LastError = msg
		}
		j.metrics.PerProvider[p.String()] = stats
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *ProbeJob) GetMetrics() ProbeMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	perProvider := make(map[string]ProviderProbeStats, len(j.metrics.PerProvider))
	for k, v := range j.metrics.PerProvider {
		perProvider[k] = v
	}

	return ProbeMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		Successful:      j.metrics.Successful,
		Failed:          j.metrics.Failed,
		PerProvider:     perProvider,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns the current metrics as a loggable map.
func (j *ProbeJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_runs":        m.TotalRuns,
		"successful_probes": m.Successful,
		"failed_probes":     m.Failed,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
