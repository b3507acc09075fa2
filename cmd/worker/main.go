// Package main provides the entrypoint for the weather gateway worker. It
// serves weather requests arriving over Pub/Sub and probes every provider on
// a schedule.
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
	"github.com/genericweather/gateway/internal/config"
	"github.com/genericweather/gateway/internal/gateway"
	"github.com/genericweather/gateway/internal/telemetry"
	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "weather-gateway-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting weather gateway worker")

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	transportMetrics, err := transport.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize transport metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
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

	probeConfig := worker.DefaultProbeConfig()
	if len(cfg.ProbeLocations) > 0 {
		probeConfig.Locations = worker.LocationsFromCoordinates(cfg.ProbeLocations)
	}
	// Probes bypass the operator overrides, so hand them the operator key.
	if cfg.Overrides.APIKey != nil {
		probeConfig.APIKeys = worker.SharedAPIKey(gw.Service.ProviderIDs(), *cfg.Overrides.APIKey)
	}

	probeJob := worker.NewProbeJob(worker.ProbeJobConfig{
		Config:  probeConfig,
		Service: gw.Service,
		Logger:  log.With().Str("component", "probe").Logger(),
	})
	scheduler := worker.NewProbeScheduler(probeJob, cfg.ProbeInterval, log)
	if err := scheduler.Start(); err != nil {
		log.Error().Err(err).Msg("failed to schedule provider probe")
		os.Exit(1)
	}
	defer scheduler.Stop()

	var pubsubHandler *worker.PubSubHandler
	if cfg.PubSubProject != "" {
		pubsubHandler, err = worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProject,
			SubscriptionName: cfg.RequestSubscription,
			ReplyTopic:       cfg.ReplyTopic,
			Service:          gw.Service,
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub handler")
			os.Exit(1)
		}

		go func() {
			if err := pubsubHandler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("pubsub receive stopped")
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT not set, pubsub host channel disabled")
	}

	// The worker exposes the ops endpoints for Cloud Run health checks.
	routerCfg := api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Health:      gw.Registry,
		History:     gw.History,
		Probe:       probeJob,
	}
	if gw.Pool != nil {
		routerCfg.Database = gw.Pool
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("ops server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ops server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
	}

	if pubsubHandler != nil {
		if err := pubsubHandler.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}

	log.Info().Msg("worker stopped")
}
