// Package gateway assembles the fetch orchestrator and its collaborators from
// process configuration. Both the API server and the worker build on it.
package gateway

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/config"
	"github.com/genericweather/gateway/internal/database"
	"github.com/genericweather/gateway/internal/geocoding/nominatim"
	"github.com/genericweather/gateway/internal/geolocation"
	"github.com/genericweather/gateway/internal/history"
	"github.com/genericweather/gateway/internal/provider/resilience"
	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
	"github.com/genericweather/gateway/internal/weather/forecastio"
	"github.com/genericweather/gateway/internal/weather/openweathermap"
	"github.com/genericweather/gateway/internal/weather/wunderground"
	"github.com/genericweather/gateway/internal/weather/yahoo"
)

// Endpoints overrides upstream base URLs. Empty fields use each client's default.
type Endpoints struct {
	OpenWeatherMap     string
	WeatherUnderground string
	ForecastIO         string
	Yahoo              string
	Nominatim          string
	Geolocation        string
}

// Options holds everything needed to build a Gateway.
type Options struct {
	Config *config.Config

	Endpoints Endpoints

	// Metrics is optional.
	Metrics *transport.Metrics

	Logger zerolog.Logger
}

// Gateway is the assembled orchestrator plus the pieces the ops surface reads.
type Gateway struct {
	Service  *weather.Service
	Registry *resilience.Registry
	History  history.Repository

	// Pool is nil unless outcomes are stored in PostgreSQL.
	Pool *pgxpool.Pool
}

// New builds the provider dispatch table, the locator and the outcome ledger.
func New(ctx context.Context, opts Options) (*Gateway, error) {
	cfg := opts.Config
	log := opts.Logger
	registry := resilience.NewRegistry()

	newTransport := func(name string, rps float64) *transport.HTTPTransport {
		clientCfg := resilience.DefaultClientConfig(name)
		clientCfg.Registry = registry
		clientCfg.CircuitBreaker.Logger = log
		return transport.New(transport.Config{
			Name:              name,
			Client:            resilience.NewClient(clientCfg),
			RequestsPerSecond: rps,
			Metrics:           opts.Metrics,
			Logger:            log,
		})
	}

	geocoder := nominatim.NewClient(nominatim.ClientConfig{
		BaseURL:   opts.Endpoints.Nominatim,
		Transport: newTransport(nominatim.ProviderName, cfg.NominatimRPS),
		Logger:    log.With().Str("component", "nominatim").Logger(),
	})

	providers := map[weather.ProviderID]weather.Provider{
		weather.ProviderOpenWeatherMap: openweathermap.NewClient(openweathermap.ClientConfig{
			BaseURL:   opts.Endpoints.OpenWeatherMap,
			Transport: newTransport(openweathermap.ProviderName, 0),
			Logger:    log.With().Str("component", openweathermap.ProviderName).Logger(),
		}),
		weather.ProviderWeatherUnderground: wunderground.NewClient(wunderground.ClientConfig{
			BaseURL:   opts.Endpoints.WeatherUnderground,
			Transport: newTransport(wunderground.ProviderName, 0),
			Logger:    log.With().Str("component", wunderground.ProviderName).Logger(),
		}),
		weather.ProviderForecastIO: forecastio.NewClient(forecastio.ClientConfig{
			BaseURL:   opts.Endpoints.ForecastIO,
			Transport: newTransport(forecastio.ProviderName, 0),
			Geocoder:  geocoder,
			Logger:    log.With().Str("component", forecastio.ProviderName).Logger(),
		}),
		weather.ProviderYahoo: yahoo.NewClient(yahoo.ClientConfig{
			BaseURL:   opts.Endpoints.Yahoo,
			Transport: newTransport(yahoo.ProviderName, 0),
			Logger:    log.With().Str("component", yahoo.ProviderName).Logger(),
		}),
	}

	locator := geolocation.NewIPLocator(geolocation.Config{
		BaseURL:   opts.Endpoints.Geolocation,
		Transport: newTransport(geolocation.ProviderName, 0),
		Metrics:   opts.Metrics,
		Logger:    log.With().Str("component", "geolocation").Logger(),
	})

	g := &Gateway{Registry: registry}

	switch cfg.HistoryBackend {
	case config.HistoryPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		repo := history.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensuring history schema: %w", err)
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
		g.Pool = pool
		g.History = repo
	default:
		g.History = history.NewInMemoryRepository(history.DefaultCapacity)
	}

	g.Service = weather.NewService(weather.ServiceConfig{
		Providers:     providers,
		Locator:       locator,
		Overrides:     cfg.Overrides,
		LocateOptions: cfg.LocateOptions,
		Recorder:      recorderFor(g.History, opts.Metrics),
		Logger:        log.With().Str("component", "weather").Logger(),
	})

	log.Info().
		Int("providers", len(providers)).
		Str("history", cfg.HistoryBackend).
		Msg("weather gateway assembled")

	return g, nil
}

// Close waits for in-flight requests and releases the database pool.
func (g *Gateway) Close() {
	g.Service.Wait()
	if g.Pool != nil {
		g.Pool.Close()
	}
}
