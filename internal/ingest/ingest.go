// Package ingest orchestrates sensor discovery and incremental measurement
// ingestion across remote sources and the repositories.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/observability"
	"github.com/couchcryptid/geosensor-ingest/internal/typemap"
)

// Source is a remote system that can discover sensors and fetch their series.
type Source interface {
	Name() domain.Source
	DiscoverSensors(ctx context.Context, tile domain.Rectangle) []domain.Sensor
	ReportedTypes(sensor domain.Sensor) []domain.MeasurementType
	Streams(sensor domain.Sensor, fields []string, scale domain.Scale) ([]typemap.Stream, error)
	FetchSeries(ctx context.Context, sensor domain.Sensor, stream typemap.Stream, scale domain.Scale, since *time.Time) ([]domain.SeriesPoint, error)
}

// SensorRepository persists sensors and their measurement type links.
type SensorRepository interface {
	UpsertSensor(ctx context.Context, sensor domain.Sensor) (domain.Sensor, bool, error)
	SensorByOriginalID(ctx context.Context, originalID string, source domain.Source) (domain.Sensor, bool, error)
	SensorsInArea(ctx context.Context, area domain.Rectangle) ([]domain.Sensor, error)
	LinkMeasurementType(ctx context.Context, sensorID int64, t domain.MeasurementType) error
}

// MeasurementRepository persists measurements.
type MeasurementRepository interface {
	LatestTimestamp(ctx context.Context, sensorID int64, t domain.MeasurementType) (*time.Time, error)
	InsertBatch(ctx context.Context, batch []domain.Measurement) (int64, error)
	ClearForSensor(ctx context.Context, sensorID int64) (int64, error)
}

// MeasurementSink receives every batch after it has been stored. Sink
// failures are logged and never fail ingestion.
type MeasurementSink interface {
	Name() string
	Publish(ctx context.Context, batch []domain.Measurement) error
}

// Orchestrator runs discovery and ingestion.
type Orchestrator struct {
	sensors      SensorRepository
	measurements MeasurementRepository
	sinks        []MeasurementSink
	logger       *slog.Logger
	metrics      *observability.Metrics
	workers      int
	ready        atomic.Bool
}

// New creates an Orchestrator. workers bounds the number of sensors ingested
// concurrently by IngestArea.
func New(sensors SensorRepository, measurements MeasurementRepository, sinks []MeasurementSink, logger *slog.Logger, metrics *observability.Metrics, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		sensors:      sensors,
		measurements: measurements,
		sinks:        sinks,
		logger:       logger,
		metrics:      metrics,
		workers:      workers,
	}
}

// CheckReadiness returns nil once a run has completed, or an error
// describing why the service is not yet ready.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// publish hands a stored batch to every sink.
func (o *Orchestrator) publish(ctx context.Context, batch []domain.Measurement) {
	for _, sink := range o.sinks {
		if err := sink.Publish(ctx, batch); err != nil {
			o.metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
			o.logger.Warn("sink publish failed", "sink", sink.Name(), "measurements", len(batch), "error", err)
		}
	}
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
