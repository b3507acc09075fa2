// Package resilience wraps the gateway's upstream HTTP calls (weather
// providers, geocoding, geolocation) in circuit breakers and reports their
// health.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Circuit breaker defaults for weather upstreams.
const (
	DefaultOpenTimeout         = 30 * time.Second
	DefaultCountInterval       = 5 * time.Minute
	DefaultConsecutiveFailures = 3
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker, normally the upstream name.
	Name string

	// MaxRequests is the number of trial requests let through while half-open.
	MaxRequests uint32

	// Interval is the cyclic period for clearing counts while closed.
	// Zero keeps counts until the state changes.
	Interval time.Duration

	// Timeout is how long the circuit stays open before going half-open.
	Timeout time.Duration

	// ReadyToTrip decides when a closed circuit opens.
	// If nil, DefaultReadyToTrip is used.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called after every state transition, after logging.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)

	// Logger receives a line for every state transition.
	Logger zerolog.Logger
}

// DefaultCircuitBreakerConfig returns the configuration used for upstream clients.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    DefaultCountInterval,
		Timeout:     DefaultOpenTimeout,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip opens the circuit after DefaultConsecutiveFailures
// failures in a row, or once at least 5 requests were made with a failure
// rate of 50% or more.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= DefaultConsecutiveFailures {
		return true
	}
	if counts.Requests < 5 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// isSuccessful keeps caller cancellations from counting against the upstream.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// NewCircuitBreaker creates a circuit breaker from cfg.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultReadyToTrip
	}

	logger := cfg.Logger
	onStateChange := cfg.OnStateChange

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		ReadyToTrip:  readyToTrip,
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")

			if onStateChange != nil {
				onStateChange(name, from, to)
			}
		},
	})
}
