package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/typemap"
)

// IngestReport summarizes the ingestion of one or more sensors.
type IngestReport struct {
	Sensors  int   `json:"sensors"`
	Streams  int   `json:"streams"`
	Inserted int64 `json:"inserted"`
	Failed   int   `json:"failed"` // streams or sensors that could not be ingested
}

func (r *IngestReport) add(other IngestReport) {
	r.Sensors += other.Sensors
	r.Streams += other.Streams
	r.Inserted += other.Inserted
	r.Failed += other.Failed
}

// IngestSensor fetches and stores everything newer than the stored watermark
// for each measurement type the sensor reports at scale. Each type is
// ingested at most once per call. A failing stream is logged and skipped;
// the returned error covers unusable input and cancellation.
func (o *Orchestrator) IngestSensor(ctx context.Context, src Source, sensor domain.Sensor, fields []string, scale domain.Scale) (IngestReport, error) {
	report := IngestReport{Sensors: 1}

	if !sensor.ID.IsAssigned() {
		return report, fmt.Errorf("%w: sensor %s has not been stored", domain.ErrInvalidInput, sensor.OriginalID)
	}
	streams, err := src.Streams(sensor, fields, scale)
	if err != nil {
		return report, fmt.Errorf("streams of sensor %s: %w", sensor.OriginalID, err)
	}

	log := o.logger.With("source", string(src.Name()), "sensor_id", sensor.ID.Int64(), "original_id", sensor.OriginalID)

	done := make(map[domain.MeasurementType]bool, len(streams))
	for _, stream := range streams {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !stream.Mapping.Type.Valid() || done[stream.Mapping.Type] {
			continue
		}
		done[stream.Mapping.Type] = true

		n, err := o.ingestStream(ctx, src, sensor, stream, scale)
		if err != nil {
			if isCancellation(ctx, err) {
				return report, ctx.Err()
			}
			report.Failed++
			log.Warn("stream ingestion failed", "field", stream.Field, "measurement_type", stream.Mapping.Type.String(), "error", err)
			continue
		}
		report.Streams++
		report.Inserted += n
	}

	log.Debug("sensor ingested", "streams", report.Streams, "inserted", report.Inserted, "failed", report.Failed)
	return report, nil
}

// ingestStream runs read-watermark, fetch, build, insert and publish for one
// (sensor, type) pair.
func (o *Orchestrator) ingestStream(ctx context.Context, src Source, sensor domain.Sensor, stream typemap.Stream, scale domain.Scale) (int64, error) {
	sensorID := sensor.ID.Int64()
	typ := stream.Mapping.Type

	since, err := o.measurements.LatestTimestamp(ctx, sensorID, typ)
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}

	points, err := src.FetchSeries(ctx, sensor, stream, scale, since)
	if err != nil {
		return 0, fmt.Errorf("fetch series: %w", err)
	}

	batch := buildMeasurements(sensor, stream, scale, points, since)
	if len(batch) == 0 {
		return 0, nil
	}

	n, err := o.measurements.InsertBatch(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	o.metrics.MeasurementsInserted.WithLabelValues(string(src.Name())).Add(float64(n))
	o.publish(ctx, batch)
	return n, nil
}

// buildMeasurements converts fetched points into measurements of the
// stream's canonical type. Points at or before since are dropped so the
// watermark only moves forward. Scales other than latest yield aggregated
// measurements spanning the scale interval.
func buildMeasurements(sensor domain.Sensor, stream typemap.Stream, scale domain.Scale, points []domain.SeriesPoint, since *time.Time) []domain.Measurement {
	var agg *domain.Aggregation
	if scale != domain.ScaleLatest {
		agg = &domain.Aggregation{
			IntervalSeconds: int64(scale.Interval().Seconds()),
			Method:          stream.Mapping.Method,
		}
	}

	batch := make([]domain.Measurement, 0, len(points))
	for _, p := range points {
		if since != nil && !p.Timestamp.After(*since) {
			continue
		}
		m := domain.Measurement{
			Type:      stream.Mapping.Type,
			Position:  sensor.Position,
			Timestamp: p.Timestamp.UTC(),
			Unit:      stream.Mapping.Unit(),
			Value:     stream.Mapping.Apply(p.Value),
			SensorID:  sensor.ID.Int64(),
		}
		if agg != nil {
			a := *agg
			m.Aggregation = &a
		}
		batch = append(batch, m)
	}
	return batch
}
