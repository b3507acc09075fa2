// Package worker runs the gateway's background processing: the Pub/Sub
// host channel and the scheduled provider probe.
package worker

import (
	"time"

	"github.com/genericweather/gateway/internal/weather"
)

// ProbeLocation is a named coordinate the probe requests weather for.
type ProbeLocation struct {
	Name        string
	Coordinates weather.Coordinates
}

// ProbeTarget is one provider/location pair of a probe run.
type ProbeTarget struct {
	Provider weather.ProviderID
	Location ProbeLocation
}

// ProbeConfig holds configuration for the provider probe job.
type ProbeConfig struct {
	// Locations are probed for every provider.
	// If empty, DefaultProbeLocations is used.
	Locations []ProbeLocation

	// Providers limits the probe to these providers. If empty, every
	// provider registered with the service is probed.
	Providers []weather.ProviderID

	// APIKeys holds the key sent with each provider's probe requests.
	APIKeys map[weather.ProviderID]string

	// Concurrency is the number of probes in flight.
	// Default: 3
	Concurrency int

	// Timeout bounds a single probe including its reply.
	// Default: 30 seconds
	Timeout time.Duration

	// Forecast requests the hourly forecast as well.
	Forecast bool
}

// DefaultProbeConfig returns the default probe configuration.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Locations:   DefaultProbeLocations(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

// DefaultProbeLocations spreads probes over a few time zones so day and
// night conditions are both exercised.
func DefaultProbeLocations() []ProbeLocation {
	return []ProbeLocation{
		{Name: "New York", Coordinates: weather.Coordinates{Latitude: 40.7128, Longitude: -74.0060}},
		{Name: "London", Coordinates: weather.Coordinates{Latitude: 51.5074, Longitude: -0.1278}},
		{Name: "Tokyo", Coordinates: weather.Coordinates{Latitude: 35.6762, Longitude: 139.6503}},
	}
}

// LocationsFromCoordinates names bare coordinates by their degrees.
func LocationsFromCoordinates(coords []weather.Coordinates) []ProbeLocation {
	locations := make([]ProbeLocation, 0, len(coords))
	for _, c := range coords {
		locations = append(locations, ProbeLocation{
			Name:        weather.FormatDegrees(c.Latitude) + "," + weather.FormatDegrees(c.Longitude),
			Coordinates: c,
		})
	}
	return locations
}

// Targets returns every provider/location pair, grouped by provider.
func (c ProbeConfig) Targets(providers []weather.ProviderID) []ProbeTarget {
	targets := make([]ProbeTarget, 0, len(providers)*len(c.Locations))
	for _, p := range providers {
		for _, loc := range c.Locations {
			targets = append(targets, ProbeTarget{Provider: p, Location: loc})
		}
	}
	return targets
}

// SharedAPIKey maps every provider in providers to key.
func SharedAPIKey(providers []weather.ProviderID, key string) map[weather.ProviderID]string {
	keys := make(map[weather.ProviderID]string, len(providers))
	for _, p := range providers {
		keys[p] = key
	}
	return keys
}
