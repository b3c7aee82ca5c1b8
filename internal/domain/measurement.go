package domain

import (
	"fmt"
	"time"
)

// AggregationMethod describes how an aggregated value was derived.
type AggregationMethod string

const (
	AggregationAverage AggregationMethod = "AVERAGE"
	AggregationMin     AggregationMethod = "MIN"
	AggregationMax     AggregationMethod = "MAX"
	AggregationSum     AggregationMethod = "SUM"
)

// Aggregation is the metadata carried by rolled-up measurements.
type Aggregation struct {
	IntervalSeconds int64             `json:"interval_seconds"`
	Method          AggregationMethod `json:"aggregation_method"`
}

// Measurement is a single time-stamped value of a sensor. A nil Aggregation
// marks a plain (instantaneous) measurement; a non-nil one marks an
// aggregated measurement over IntervalSeconds.
type Measurement struct {
	ID          SurrogateID     `json:"measurement_id"`
	Type        MeasurementType `json:"measurement_type"`
	Position    Position        `json:"position"`
	Timestamp   time.Time       `json:"timestamp"`
	Unit        string          `json:"unit"`
	Value       float64         `json:"value"`
	SensorID    int64           `json:"sensor_id"`
	Aggregation *Aggregation    `json:"aggregation,omitempty"`
}

// IsAggregated reports whether m carries aggregation metadata.
func (m Measurement) IsAggregated() bool {
	return m.Aggregation != nil
}

// AssignID sets the surrogate id. See SurrogateID.Assign.
func (m *Measurement) AssignID(id int64) error {
	assigned, err := m.ID.Assign(id)
	if err != nil {
		return fmt.Errorf("measurement of sensor %d at %s: %w", m.SensorID, m.Timestamp.Format(time.RFC3339), err)
	}
	m.ID = assigned
	return nil
}

// Validate checks the invariants required before persisting.
func (m Measurement) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: measurement type %d is not persistable", ErrInvalidInput, int(m.Type))
	}
	if m.SensorID < 0 {
		return fmt.Errorf("%w: measurement without sensor id", ErrInvalidInput)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("%w: measurement without timestamp", ErrInvalidInput)
	}
	return nil
}

// SeriesPoint is one value of a fetched series before it becomes a Measurement.
type SeriesPoint struct {
	Timestamp time.Time
	Value     float64
}

// MeasurementQuery selects stored measurements of one sensor. A nil Type
// selects all types; zero From/To leave that side of the range open.
type MeasurementQuery struct {
	SensorID int64
	Type     *MeasurementType
	From     time.Time
	To       time.Time
}

// Matches reports whether m satisfies the query.
func (q MeasurementQuery) Matches(m Measurement) bool {
	if m.SensorID != q.SensorID {
		return false
	}
	if q.Type != nil && m.Type != *q.Type {
		return false
	}
	if !q.From.IsZero() && m.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && m.Timestamp.After(q.To) {
		return false
	}
	return true
}
