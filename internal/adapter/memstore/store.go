// Package memstore is an in-memory sensor and measurement repository for dry
// runs and tests. Values are copied at the boundary.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

// Store is a concurrency-safe in-memory implementation of both repositories.
type Store struct {
	mu sync.RWMutex

	sensors  map[int64]domain.Sensor
	byKey    map[string]int64 // Sensor.Key() -> sensor id
	types    map[int64]map[domain.MeasurementType]struct{}
	measured []domain.Measurement

	nextSensorID      int64
	nextMeasurementID int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sensors: make(map[int64]domain.Sensor),
		byKey:   make(map[string]int64),
		types:   make(map[int64]map[domain.MeasurementType]struct{}),
	}
}

// UpsertSensor inserts s or updates the mutable fields of the stored sensor
// with the same identity. created reports whether a new id was assigned.
func (s *Store) UpsertSensor(_ context.Context, sensor domain.Sensor) (domain.Sensor, bool, error) {
	if sensor.OriginalID == "" {
		return domain.Sensor{}, false, fmt.Errorf("%w: sensor without original id", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.byKey[sensor.Key()]
	if !exists {
		if sensor.ID.IsAssigned() {
			return domain.Sensor{}, false, fmt.Errorf("%w: sensor %s holds id %s but is not stored",
				domain.ErrIDAlreadyAssigned, sensor.Key(), sensor.ID)
		}
		id = s.nextSensorID + 1
	}
	if err := sensor.AssignID(id); err != nil {
		return domain.Sensor{}, false, err
	}

	if exists {
		stored := s.sensors[id]
		stored.Position = sensor.Position
		stored.AdditionalInformation = sensor.AdditionalInformation
		stored.SensorType = sensor.SensorType
		s.sensors[id] = stored
		return stored, false, nil
	}

	s.nextSensorID = id
	s.byKey[sensor.Key()] = id
	s.sensors[id] = sensor
	return sensor, true, nil
}

// SensorByOriginalID looks up a sensor by its identity.
func (s *Store) SensorByOriginalID(_ context.Context, originalID string, source domain.Source) (domain.Sensor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := domain.Sensor{OriginalID: originalID, Source: source}.Key()
	id, ok := s.byKey[key]
	if !ok {
		return domain.Sensor{}, false, nil
	}
	return s.sensors[id], true, nil
}

// SensorsInArea returns the sensors inside area ordered by id.
func (s *Store) SensorsInArea(_ context.Context, area domain.Rectangle) ([]domain.Sensor, error) {
	if err := area.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Sensor
	for _, sensor := range s.sensors {
		if area.Contains(sensor.Position) {
			out = append(out, sensor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Int64() < out[j].ID.Int64() })
	return out, nil
}

// LinkMeasurementType records that a sensor reports t. Linking twice is a no-op.
func (s *Store) LinkMeasurementType(_ context.Context, sensorID int64, t domain.MeasurementType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: cannot link measurement type %d", domain.ErrInvalidInput, int(t))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sensors[sensorID]; !ok {
		return fmt.Errorf("%w: sensor id %d", domain.ErrUnknownSensor, sensorID)
	}
	set, ok := s.types[sensorID]
	if !ok {
		set = make(map[domain.MeasurementType]struct{})
		s.types[sensorID] = set
	}
	set[t] = struct{}{}
	return nil
}

// MeasurementTypes returns the linked types of a sensor in enumeration order.
func (s *Store) MeasurementTypes(_ context.Context, sensorID int64) ([]domain.MeasurementType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MeasurementType, 0, len(s.types[sensorID]))
	for t := range s.types[sensorID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// LatestTimestamp returns the watermark of (sensorID, t), or nil when nothing
// is stored.
func (s *Store) LatestTimestamp(_ context.Context, sensorID int64, t domain.MeasurementType) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *time.Time
	for i := range s.measured {
		m := &s.measured[i]
		if m.SensorID != sensorID || m.Type != t {
			continue
		}
		if latest == nil || m.Timestamp.After(*latest) {
			ts := m.Timestamp
			latest = &ts
		}
	}
	return latest, nil
}

// InsertBatch appends measurements and assigns their ids. The batch is
// validated first and rejected as a whole on the first invalid record.
func (s *Store) InsertBatch(_ context.Context, batch []domain.Measurement) (int64, error) {
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return 0, fmt.Errorf("measurement %d: %w", i, err)
		}
		if batch[i].ID.IsAssigned() {
			return 0, fmt.Errorf("measurement %d: %w", i, domain.ErrIDAlreadyAssigned)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range batch {
		if _, ok := s.sensors[batch[i].SensorID]; !ok {
			return 0, fmt.Errorf("measurement %d: %w: sensor id %d", i, domain.ErrUnknownSensor, batch[i].SensorID)
		}
	}
	for _, m := range batch {
		s.nextMeasurementID++
		m.ID = domain.AssignedID(s.nextMeasurementID)
		if m.Aggregation != nil {
			agg := *m.Aggregation
			m.Aggregation = &agg
		}
		s.measured = append(s.measured, m)
	}
	return int64(len(batch)), nil
}

// ClearForSensor deletes every measurement of sensorID.
func (s *Store) ClearForSensor(_ context.Context, sensorID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.measured[:0]
	var deleted int64
	for _, m := range s.measured {
		if m.SensorID == sensorID {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.measured = kept
	return deleted, nil
}

// Measurements returns the stored measurements matching q, ordered by time.
func (s *Store) Measurements(_ context.Context, q domain.MeasurementQuery) ([]domain.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Measurement
	for _, m := range s.measured {
		if !q.Matches(m) {
			continue
		}
		if m.Aggregation != nil {
			agg := *m.Aggregation
			m.Aggregation = &agg
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// CheckReadiness always succeeds.
func (s *Store) CheckReadiness(_ context.Context) error {
	return nil
}

// Close is a no-op; it satisfies the same lifecycle as the database store.
func (s *Store) Close() error {
	return nil
}
