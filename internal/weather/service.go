package weather

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Provider defines the interface for weather provider adapters.
type Provider interface {
	// Fetch retrieves current conditions (and the hourly forecast when
	// cfg.Forecast is set) for coords. Any error is reported to the host as
	// a bad key / fetch failure.
	Fetch(ctx context.Context, cfg RequestConfig, coords Coordinates) (*Result, error)

	// Name returns the provider name for logging.
	Name() string
}

// LocateOptions bounds a device location lookup.
type LocateOptions struct {
	// Timeout is how long to wait for a fix.
	Timeout time.Duration

	// MaximumAge is the oldest cached fix that is still acceptable.
	MaximumAge time.Duration
}

// DefaultLocateOptions returns a 15 second timeout and accepts fixes up to a minute old.
func DefaultLocateOptions() LocateOptions {
	return LocateOptions{
		Timeout:    15 * time.Second,
		MaximumAge: 60 * time.Second,
	}
}

// Locator resolves the device location when a request carries none.
type Locator interface {
	Locate(ctx context.Context, opts LocateOptions) (Coordinates, error)
}

// Channel carries outbound messages back to the display client.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f ChannelFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Recorder stores terminal outcomes.
type Recorder interface {
	Record(ctx context.Context, outcome *Outcome) error
}

// State is a step of the fetch lifecycle, used for logging.
type State int

const (
	StateIdle State = iota
	StateConfigResolved
	StateLocationResolving
	StateLocationResolved
	StateAdapterDispatched
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfigResolved:
		return "config_resolved"
	case StateLocationResolving:
		return "location_resolving"
	case StateLocationResolved:
		return "location_resolved"
	case StateAdapterDispatched:
		return "adapter_dispatched"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ServiceConfig holds configuration for the fetch orchestrator.
type ServiceConfig struct {
	// Providers is the dispatch table. Requests for providers missing from
	// it produce no reply at all.
	Providers map[ProviderID]Provider

	// Locator resolves the device location. A nil Locator makes every
	// request without an explicit location fail as location unavailable.
	Locator Locator

	// Overrides win over request payload fields.
	Overrides Overrides

	// LocateOptions defaults to DefaultLocateOptions.
	LocateOptions LocateOptions

	// Recorder is optional.
	Recorder Recorder

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service orchestrates inbound requests: it resolves configuration and
// location, dispatches to the selected provider and relays exactly one
// terminal message to the host channel.
type Service struct {
	providers     map[ProviderID]Provider
	locator       Locator
	overrides     Overrides
	locateOptions LocateOptions
	recorder      Recorder
	logger        zerolog.Logger

	last     atomic.Pointer[RequestConfig]
	inFlight sync.WaitGroup
}

// NewService creates a new fetch orchestrator.
func NewService(cfg ServiceConfig) *Service {
	locateOptions := cfg.LocateOptions
	if locateOptions.Timeout == 0 {
		locateOptions.Timeout = DefaultLocateOptions().Timeout
	}
	if locateOptions.MaximumAge == 0 {
		locateOptions.MaximumAge = DefaultLocateOptions().MaximumAge
	}

	providers := make(map[ProviderID]Provider, len(cfg.Providers))
	for id, p := range cfg.Providers {
		providers[id] = p
	}

	return &Service{
		providers:     providers,
		locator:       cfg.Locator,
		overrides:     cfg.Overrides,
		locateOptions: locateOptions,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger,
	}
}

// Provider returns the adapter registered for id.
func (s *Service) Provider(id ProviderID) (Provider, error) {
	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProvider, int(id))
	}
	return p, nil
}

// ProviderIDs returns the registered provider IDs in ascending order.
func (s *Service) ProviderIDs() []ProviderID {
	ids := make([]ProviderID, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LastConfig returns the configuration of the most recently accepted request.
func (s *Service) LastConfig() (RequestConfig, bool) {
	cfg := s.last.Load()
	if cfg == nil {
		return RequestConfig{}, false
	}
	return *cfg, true
}

// Handle accepts an inbound request using the service-level overrides.
// See HandleWithOverrides.
func (s *Service) Handle(ctx context.Context, payload Message, reply Channel) <-chan struct{} {
	return s.HandleWithOverrides(ctx, payload, s.overrides, reply)
}

// HandleWithOverrides accepts an inbound request and processes it in the
// background. It returns nil when the payload is not a request. Otherwise the
// returned channel is closed once the request reached a terminal state, which
// is after its reply (if any) was sent. Cancelling ctx does not abort a
// request in flight.
func (s *Service) HandleWithOverrides(ctx context.Context, payload Message, overrides Overrides, reply Channel) <-chan struct{} {
	if !payload.IsRequest() {
		return nil
	}

	cfg := overrides.Resolve(payload.Overrides())
	stored := cfg
	s.last.Store(&stored)

	done := make(chan struct{})
	ctx = context.WithoutCancel(ctx)

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer close(done)
		s.run(ctx, cfg, reply)
	}()

	return done
}

// Wait blocks until all accepted requests have terminated.
func (s *Service) Wait() {
	s.inFlight.Wait()
}

func (s *Service) run(ctx context.Context, cfg RequestConfig, reply Channel) {
	start := time.Now()
	logger := s.logger.With().
		Str("provider", cfg.Provider.String()).
		Bool("forecast", cfg.Forecast).
		Bool("feels_like", cfg.FeelsLike).
		Logger()

	logger.Debug().Stringer("state", StateConfigResolved).Msg("request config resolved")

	var coords Coordinates
	if cfg.Location != nil {
		coords = *cfg.Location
		logger.Debug().
			Float64("lat", coords.Latitude).
			Float64("lon", coords.Longitude).
			Msg("using explicit location")
	} else {
		logger.Debug().Stringer("state", StateLocationResolving).Msg("resolving device location")

		located, err := s.locate(ctx)
		if err != nil {
			logger.Warn().Err(err).Stringer("state", StateFailed).Msg("device location unavailable")
			s.fail(ctx, reply, cfg, nil, FailureLocationUnavailable, start)
			return
		}
		coords = located

		logger.Debug().
			Stringer("state", StateLocationResolved).
			Float64("lat", coords.Latitude).
			Float64("lon", coords.Longitude).
			Msg("device location resolved")
	}

	provider, err := s.Provider(cfg.Provider)
	if err != nil {
		logger.Debug().Err(err).Msg("no adapter for provider, request dropped")
		return
	}

	logger.Debug().Stringer("state", StateAdapterDispatched).Msg("fetching weather from provider")

	result, err := provider.Fetch(ctx, cfg, coords)
	if err != nil {
		logger.Warn().Err(err).Stringer("state", StateFailed).Msg("failed to fetch weather")
		s.fail(ctx, reply, cfg, &coords, FailureBadKey, start)
		return
	}

	logger.Debug().
		Stringer("state", StateCompleted).
		Stringer("condition", result.Condition).
		Int("temp_k", result.TempK).
		Int("forecast_slots", len(result.Forecast)).
		Msg("weather fetched")

	s.emit(ctx, reply, result.Message(), s.outcome(cfg, &coords, OutcomeOK, start))
}

func (s *Service) locate(ctx context.Context) (Coordinates, error) {
	if s.locator == nil {
		return Coordinates{}, ErrLocationUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.locateOptions.Timeout)
	defer cancel()

	coords, err := s.locator.Locate(ctx, s.locateOptions)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, err)
	}
	return coords, nil
}

func (s *Service) fail(ctx context.Context, reply Channel, cfg RequestConfig, coords *Coordinates, failure Failure, start time.Time) {
	kind := OutcomeBadKey
	if failure == FailureLocationUnavailable {
		kind = OutcomeLocationUnavailable
	}
	s.emit(ctx, reply, failure.Message(), s.outcome(cfg, coords, kind, start))
}

func (s *Service) emit(ctx context.Context, reply Channel, msg Message, outcome *Outcome) {
	if err := reply.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("outcome", string(outcome.Kind)).
			Msg("failed to send reply")
	}

	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, outcome); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record outcome")
	}
}

func (s *Service) outcome(cfg RequestConfig, coords *Coordinates, kind OutcomeKind, start time.Time) *Outcome {
	o := &Outcome{
		Provider:  cfg.Provider,
		Kind:      kind,
		Duration:  time.Since(start),
		CreatedAt: time.Now(),
	}
	if coords != nil {
		o.Latitude, o.Longitude = coords.Scaled()
	}
	return o
}
