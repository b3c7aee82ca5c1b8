// Command resetsensor deletes every stored measurement of one sensor so the
// next ingestion run fetches its full history again. The sensor itself and
// its measurement type links are kept.
//
// Usage:
//
//	go run ./cmd/resetsensor -source Netatmo -id 70:ee:50:00:00:01
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/geosensor-ingest/internal/config"
	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/ingest"
	"github.com/couchcryptid/geosensor-ingest/internal/observability"
	"github.com/couchcryptid/geosensor-ingest/internal/storage"
)

func main() {
	sourceName := flag.String("source", "", "sensor source: Netatmo or DWD")
	originalID := flag.String("id", "", "original id of the sensor at its source")
	flag.Parse()

	if *sourceName == "" || *originalID == "" {
		fmt.Fprintln(os.Stderr, "usage: resetsensor -source <Netatmo|DWD> -id <original id>")
		os.Exit(2)
	}
	source, err := domain.ParseSource(*sourceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.StoreBackend != config.StorePostgres {
		slog.Error("resetsensor needs a persistent store", "backend", cfg.StoreBackend)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deleted, err := reset(ctx, cfg, logger, source, *originalID)
	if err != nil {
		logger.Error("reset failed", "source", string(source), "original_id", *originalID, "error", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %d measurements of %s sensor %s\n", deleted, source, *originalID)
}

func reset(ctx context.Context, cfg *config.Config, logger *slog.Logger, source domain.Source, originalID string) (int64, error) {
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	o := ingest.New(store, store, nil, logger, observability.NewMetrics(), 1)
	return o.ResetSensor(ctx, source, originalID)
}
