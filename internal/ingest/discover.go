package ingest

import (
	"context"
	"errors"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/geo"
)

// DiscoveryReport summarizes one discovery pass.
type DiscoveryReport struct {
	Tiles      int `json:"tiles"`
	Found      int `json:"found"`      // unique sensors returned by the source
	Duplicates int `json:"duplicates"` // sensors already seen on an earlier tile
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
}

// Discover tiles area, asks src for the sensors of every tile and upserts
// each sensor once. Newly created sensors get their reported measurement
// types linked. A failing tile or sensor never aborts the pass; cancellation
// stops it between tiles and returns the partial report with ctx.Err().
func (o *Orchestrator) Discover(ctx context.Context, src Source, area domain.Rectangle, tileEdgeMeters int) (DiscoveryReport, error) {
	var report DiscoveryReport

	tiles, err := geo.Subdivide(area, tileEdgeMeters)
	if err != nil {
		return report, err
	}

	source := string(src.Name())
	log := o.logger.With("source", source)
	log.Info("discovery started", "area", area.String(), "tiles", len(tiles), "tile_edge_m", tileEdgeMeters)

	seen := make(map[string]struct{})
	for i, tile := range tiles {
		if err := ctx.Err(); err != nil {
			log.Info("discovery stopping", "reason", err, "tiles_done", i)
			return report, err
		}

		found := src.DiscoverSensors(ctx, tile)
		report.Tiles++
		o.metrics.TilesProcessed.WithLabelValues(source).Inc()
		log.Debug("tile processed", "tile", tile.String(), "index", i, "sensors", len(found))

		for _, sensor := range found {
			if _, dup := seen[sensor.OriginalID]; dup {
				report.Duplicates++
				continue
			}
			seen[sensor.OriginalID] = struct{}{}
			report.Found++
			o.metrics.SensorsDiscovered.WithLabelValues(source).Inc()

			o.registerSensor(ctx, src, sensor, &report)
		}
	}

	log.Info("discovery finished",
		"tiles", report.Tiles,
		"found", report.Found,
		"created", report.Created,
		"updated", report.Updated,
		"failed", report.Failed,
	)
	return report, nil
}

func (o *Orchestrator) registerSensor(ctx context.Context, src Source, sensor domain.Sensor, report *DiscoveryReport) {
	source := string(src.Name())

	stored, created, err := o.sensors.UpsertSensor(ctx, sensor)
	if err != nil {
		report.Failed++
		o.metrics.SensorUpserts.WithLabelValues(source, "error").Inc()
		if errors.Is(err, domain.ErrIDAlreadyAssigned) {
			o.metrics.IdentityViolations.Inc()
		}
		o.logger.Warn("sensor upsert failed", "source", source, "original_id", sensor.OriginalID, "error", err)
		return
	}

	if !created {
		report.Updated++
		o.metrics.SensorUpserts.WithLabelValues(source, "updated").Inc()
		return
	}

	report.Created++
	o.metrics.SensorUpserts.WithLabelValues(source, "created").Inc()
	o.linkTypes(ctx, src, stored)
}

// linkTypes records the measurement types a new sensor reports. Unknown
// types are skipped.
func (o *Orchestrator) linkTypes(ctx context.Context, src Source, sensor domain.Sensor) {
	for _, t := range src.ReportedTypes(sensor) {
		if !t.Valid() {
			continue
		}
		if err := o.sensors.LinkMeasurementType(ctx, sensor.ID.Int64(), t); err != nil {
			o.logger.Warn("link measurement type failed",
				"sensor_id", sensor.ID.Int64(),
				"measurement_type", t.String(),
				"error", err,
			)
		}
	}
}
