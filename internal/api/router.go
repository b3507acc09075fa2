// Package api provides the HTTP host channel and ops API of the weather gateway.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/api/handler"
	"github.com/genericweather/gateway/internal/api/middleware"
	"github.com/genericweather/gateway/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// Weather is the fetch orchestrator behind POST /v1/weather.
	Weather      handler.WeatherService
	ReplyTimeout time.Duration

	Health   handler.HealthSource
	History  handler.OutcomeSource
	Database handler.Pinger

	// Probe exposes probe metrics on GET /v1/ops/probe when set.
	Probe handler.ProbeSource
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "weather-gateway-api"
	}

	// Order matters: request ID and tracing must wrap logging.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, r, r.Method+" is not supported on "+r.URL.Path)
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Health:    cfg.Health,
		History:   cfg.History,
		Database:  cfg.Database,
		Probe:     cfg.Probe,
		Logger:    cfg.Logger,
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(middleware.RateLimitByIP(middleware.StandardRateLimit)).Get("/status", opsHandler.SystemStatus)
			if cfg.Probe != nil {
				r.Get("/probe", opsHandler.ProbeStatus)
			}
		})

		if cfg.Weather != nil {
			weatherHandler := handler.NewWeatherHandler(cfg.Weather, cfg.ReplyTimeout, cfg.Logger)
			r.With(
				middleware.RateLimitByIP(middleware.WeatherRateLimit),
				middleware.RequireJSON,
			).Post("/weather", weatherHandler.RequestWeather)
		}
	})

	return r
}
