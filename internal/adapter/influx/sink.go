// Package influx mirrors stored measurements into an InfluxDB bucket.
package influx

import (
	"context"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	influxdomain "github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/couchcryptid/geosensor-ingest/internal/config"
	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

const measurementName = "sensor_measurement"

// Sink writes each measurement as one point tagged by sensor and type.
// It implements ingest.MeasurementSink.
type Sink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

// NewSink creates a blocking writer for the configured org and bucket.
func NewSink(cfg *config.Config) *Sink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &Sink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
	}
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string {
	return "influx"
}

// Publish writes the batch in one request.
func (s *Sink) Publish(ctx context.Context, batch []domain.Measurement) error {
	if len(batch) == 0 {
		return nil
	}
	points := make([]*write.Point, len(batch))
	for i := range batch {
		points[i] = toPoint(batch[i])
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points: %w", len(points), err)
	}
	return nil
}

// CheckReadiness reports whether the InfluxDB server is healthy.
func (s *Sink) CheckReadiness(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health: %w", err)
	}
	if health.Status != influxdomain.HealthCheckStatusPass {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb health check failed: %s", msg)
	}
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}

func toPoint(m domain.Measurement) *write.Point {
	tags := map[string]string{
		"sensor_id":        strconv.FormatInt(m.SensorID, 10),
		"measurement_type": m.Type.String(),
		"unit":             m.Unit,
	}
	fields := map[string]interface{}{
		"value":     m.Value,
		"latitude":  m.Position.Latitude,
		"longitude": m.Position.Longitude,
	}
	if m.Aggregation != nil {
		tags["aggregation_method"] = string(m.Aggregation.Method)
		fields["interval_seconds"] = m.Aggregation.IntervalSeconds
	}
	return influxdb2.NewPoint(measurementName, tags, fields, m.Timestamp)
}
