// Package storage opens the configured repository backend.
package storage

import (
	"context"
	"fmt"

	"github.com/couchcryptid/geosensor-ingest/internal/adapter/memstore"
	"github.com/couchcryptid/geosensor-ingest/internal/adapter/postgres"
	"github.com/couchcryptid/geosensor-ingest/internal/config"
	"github.com/couchcryptid/geosensor-ingest/internal/ingest"
)

// Store is a backend serving both repositories.
type Store interface {
	ingest.SensorRepository
	ingest.MeasurementRepository
	CheckReadiness(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)

// Open returns the backend selected by STORE_BACKEND. The PostgreSQL schema
// is applied on open.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return memstore.New(), nil
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := postgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
