// Package kafka publishes stored measurements to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geosensor-ingest/internal/config"
	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per measurement, keyed by sensor id so the
// measurements of a sensor stay ordered within a partition.
// It implements ingest.MeasurementSink.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (p *Publisher) Name() string {
	return "kafka"
}

// Publish serializes a stored batch and writes it in a single WriteMessages
// call.
func (p *Publisher) Publish(ctx context.Context, batch []domain.Measurement) error {
	if len(batch) == 0 {
		return nil
	}
	publishedAt := domain.Now()
	msgs := make([]kafkago.Message, len(batch))
	for i := range batch {
		msg, err := serializeToMessage(batch[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d measurements: %w", len(msgs), err)
	}
	p.logger.Debug("measurements published", "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// measurementEvent is the wire shape of a published measurement.
type measurementEvent struct {
	SensorID          int64                    `json:"sensor_id"`
	MeasurementType   string                   `json:"measurement_type"`
	Timestamp         time.Time                `json:"timestamp"`
	Value             float64                  `json:"value"`
	Unit              string                   `json:"unit"`
	Latitude          float64                  `json:"latitude"`
	Longitude         float64                  `json:"longitude"`
	IntervalSeconds   *int64                   `json:"interval_seconds,omitempty"`
	AggregationMethod domain.AggregationMethod `json:"aggregation_method,omitempty"`
}

// serializeToMessage marshals a Measurement into a Kafka message.
func serializeToMessage(m domain.Measurement, publishedAt time.Time) (kafkago.Message, error) {
	event := measurementEvent{
		SensorID:        m.SensorID,
		MeasurementType: m.Type.String(),
		Timestamp:       m.Timestamp.UTC(),
		Value:           m.Value,
		Unit:            m.Unit,
		Latitude:        m.Position.Latitude,
		Longitude:       m.Position.Longitude,
	}
	if m.Aggregation != nil {
		interval := m.Aggregation.IntervalSeconds
		event.IntervalSeconds = &interval
		event.AggregationMethod = m.Aggregation.Method
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize measurement: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(m.SensorID, 10)),
		Value: data,
		Time:  m.Timestamp,
		Headers: []kafkago.Header{
			{Key: "measurement_type", Value: []byte(event.MeasurementType)},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
