package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geosensor-ingest/internal/adapter/dwd"
	"github.com/couchcryptid/geosensor-ingest/internal/adapter/httpadapter"
	"github.com/couchcryptid/geosensor-ingest/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/geosensor-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/geosensor-ingest/internal/adapter/netatmo"
	"github.com/couchcryptid/geosensor-ingest/internal/config"
	"github.com/couchcryptid/geosensor-ingest/internal/ingest"
	"github.com/couchcryptid/geosensor-ingest/internal/observability"
	"github.com/couchcryptid/geosensor-ingest/internal/ratelimit"
	"github.com/couchcryptid/geosensor-ingest/internal/scheduler"
	"github.com/couchcryptid/geosensor-ingest/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()
	logger.Info("store ready", "backend", cfg.StoreBackend)

	// Remote sources share one bound on in-flight requests.
	gate := ratelimit.NewGate(cfg.MaxConcurrentRequests)
	var sources []ingest.Source
	if cfg.NetatmoEnabled {
		limiter := ratelimit.NewLimiter(cfg.DiscoveryDelay, clockwork.NewRealClock())
		sources = append(sources, netatmo.NewClient(netatmo.Config{
			APIURL:     cfg.NetatmoAPIURL,
			AuthURL:    cfg.NetatmoAuthURL,
			Token:      cfg.NetatmoToken,
			Timeout:    cfg.NetatmoTimeout,
			RetryCount: 2,
		}, limiter, gate, metrics, logger))
		logger.Info("netatmo source enabled", "discovery_delay", cfg.DiscoveryDelay.String())
	}
	if cfg.DWDEnabled {
		sources = append(sources, dwd.NewClient(dwd.Config{
			DataDir:     cfg.DWDDataDir,
			StationList: cfg.DWDStationList,
			CacheSize:   cfg.DWDCacheSize,
		}, metrics, logger))
		logger.Info("dwd source enabled", "data_dir", cfg.DWDDataDir)
	}

	// Optional sinks (feature-flagged via KAFKA_ENABLED / INFLUX_ENABLED).
	var sinks []ingest.MeasurementSink
	readiness := httpadapter.Readiness{store}
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		sinks = append(sinks, publisher)
		logger.Info("kafka publisher enabled", "topic", cfg.KafkaTopic)
	}
	var mirror *influx.Sink
	if cfg.InfluxEnabled {
		mirror = influx.NewSink(cfg)
		sinks = append(sinks, mirror)
		readiness = append(readiness, mirror)
		logger.Info("influx mirror enabled", "bucket", cfg.InfluxBucket)
	}

	orchestrator := ingest.New(store, store, sinks, logger, metrics, cfg.IngestWorkers)
	readiness = append(readiness, orchestrator)

	job := ingest.Job{
		Sources:        sources,
		Area:           cfg.Area.Rectangle(),
		TileEdgeMeters: cfg.TileEdgeMeters,
		Discover:       cfg.DiscoveryEnabled,
		Fields:         cfg.IngestFields,
		Scale:          cfg.Scale(),
	}
	sched := scheduler.New(orchestrator, job, cfg.IngestInterval, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness, sched, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingestion; a one-shot run ends the process when it finishes.
	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		runErr = <-done
	case runErr = <-done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if mirror != nil {
		mirror.Close()
	}

	logger.Info("shutdown complete")
	return runErr
}
