// Package main provides the entrypoint for the weather gateway API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/api"
	"github.com/genericweather/gateway/internal/api/middleware"
	"github.com/genericweather/gateway/internal/config"
	"github.com/genericweather/gateway/internal/gateway"
	"github.com/genericweather/gateway/internal/telemetry"
	"github.com/genericweather/gateway/internal/transport"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "weather-gateway-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting weather gateway API")

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	transportMetrics, err := transport.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize transport metrics")
		os.Exit(1)
	}

	gw, err := gateway.New(ctx, gateway.Options{
		Config:  cfg,
		Metrics: transportMetrics,
		Logger:  log,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to assemble gateway")
		os.Exit(1)
	}
	defer gw.Close()

	routerCfg := api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		RequireTLS:   cfg.Environment == "production",
		Weather:      gw.Service,
		ReplyTimeout: cfg.ReplyTimeout,
		Health:       gw.Registry,
		History:      gw.History,
	}
	// Leave Database unset rather than storing a typed nil pool.
	if gw.Pool != nil {
		routerCfg.Database = gw.Pool
	}
	router := api.NewRouter(routerCfg)

	// WriteTimeout must outlast the reply wait of POST /v1/weather.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ReplyTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
