// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/database"
	"github.com/genericweather/gateway/internal/weather"
)

// History backends.
const (
	HistoryMemory   = "memory"
	HistoryPostgres = "postgres"
)

// Config is the process configuration shared by the API server and the worker.
type Config struct {
	Port            string
	Environment     string
	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64

	// Overrides is the operator layer. Fields set here win over the
	// corresponding request payload fields.
	Overrides weather.Overrides

	ReplyTimeout  time.Duration
	LocateOptions weather.LocateOptions
	NominatimRPS  float64

	HistoryBackend string

	// Database is only connected when HistoryBackend is postgres.
	Database database.Config

	PubSubProject       string
	RequestSubscription string
	ReplyTopic          string

	ProbeInterval  time.Duration
	ProbeLocations []weather.Coordinates
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg := &Config{
		Port:                getenvDefault("APP_PORT", "8080"),
		Environment:         getenvDefault("APP_ENV", "development"),
		OTelEnabled:         os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:        getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		HistoryBackend:      getenvDefault("HISTORY_BACKEND", HistoryMemory),
		PubSubProject:       os.Getenv("PUBSUB_PROJECT"),
		RequestSubscription: getenvDefault("PUBSUB_REQUEST_SUBSCRIPTION", "weather-requests"),
		ReplyTopic:          getenvDefault("PUBSUB_REPLY_TOPIC", "weather-replies"),
	}

	overrides, err := loadOverrides()
	if err != nil {
		return nil, err
	}
	cfg.Overrides = overrides

	if cfg.ReplyTimeout, err = getenvDuration("GW_REPLY_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.LocateOptions.Timeout, err = getenvDuration("GEO_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.LocateOptions.MaximumAge, err = getenvDuration("GEO_MAX_AGE", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = getenvDuration("PROBE_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}

	ratio, err := strconv.ParseFloat(getenvDefault("OTEL_TRACE_SAMPLE_RATIO", "1"), 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("invalid OTEL_TRACE_SAMPLE_RATIO %q", os.Getenv("OTEL_TRACE_SAMPLE_RATIO"))
	}
	cfg.OTelSampleRatio = ratio

	rps, err := strconv.ParseFloat(getenvDefault("NOMINATIM_RPS", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NOMINATIM_RPS: %w", err)
	}
	cfg.NominatimRPS = rps

	switch cfg.HistoryBackend {
	case HistoryMemory, HistoryPostgres:
	default:
		return nil, fmt.Errorf("invalid HISTORY_BACKEND %q", cfg.HistoryBackend)
	}

	if cfg.Database, err = database.ConfigFromEnv(); err != nil {
		return nil, err
	}

	if v := os.Getenv("PROBE_LOCATIONS"); v != "" {
		for _, part := range strings.Split(v, ";") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			coords, err := ParseCoordinates(part)
			if err != nil {
				return nil, fmt.Errorf("invalid PROBE_LOCATIONS: %w", err)
			}
			cfg.ProbeLocations = append(cfg.ProbeLocations, coords)
		}
	}

	return cfg, nil
}

func loadOverrides() (weather.Overrides, error) {
	var o weather.Overrides

	if v := os.Getenv("GW_API_KEY"); v != "" {
		o.APIKey = &v
	}
	if v := os.Getenv("GW_PROVIDER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return o, fmt.Errorf("invalid GW_PROVIDER: %w", err)
		}
		p := weather.ProviderID(n)
		o.Provider = &p
	}
	if v := os.Getenv("GW_FORECAST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("invalid GW_FORECAST: %w", err)
		}
		o.Forecast = &b
	}
	if v := os.Getenv("GW_FEELS_LIKE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("invalid GW_FEELS_LIKE: %w", err)
		}
		o.FeelsLike = &b
	}
	if v := os.Getenv("GW_LOCATION"); v != "" {
		coords, err := ParseCoordinates(v)
		if err != nil {
			return o, fmt.Errorf("invalid GW_LOCATION: %w", err)
		}
		o.Location = &coords
	}

	return o, nil
}

// ParseCoordinates parses a "lat,lon" pair in degrees.
func ParseCoordinates(s string) (weather.Coordinates, error) {
	latStr, lonStr, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return weather.Coordinates{}, fmt.Errorf("expected lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("longitude: %w", err)
	}
	return weather.Coordinates{Latitude: lat, Longitude: lon}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
