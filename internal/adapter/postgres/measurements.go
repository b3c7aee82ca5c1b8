package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

const insertMeasurementSQL = `
INSERT INTO measurements
    (sensor_id, measurement_type, position, timestamp, unit, value, interval_seconds, aggregation_method)
VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7, $8, $9)`

// LatestTimestamp returns the watermark of (sensorID, t), or nil when nothing
// is stored yet.
func (s *Store) LatestTimestamp(ctx context.Context, sensorID int64, t domain.MeasurementType) (*time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM measurements WHERE sensor_id = $1 AND measurement_type = $2`,
		sensorID, int(t)).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("watermark of sensor %d type %s: %w", sensorID, t, err)
	}
	if !latest.Valid {
		return nil, nil
	}
	ts := latest.Time.UTC()
	return &ts, nil
}

// InsertBatch appends measurements in one transaction. No deduplication is
// done here; callers only insert rows after the watermark.
func (s *Store) InsertBatch(ctx context.Context, batch []domain.Measurement) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return 0, fmt.Errorf("measurement %d: %w", i, err)
		}
		if batch[i].ID.IsAssigned() {
			return 0, fmt.Errorf("measurement %d: %w", i, domain.ErrIDAlreadyAssigned)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertMeasurementSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range batch {
		m := &batch[i]
		var (
			interval sql.NullInt64
			method   sql.NullString
		)
		if m.Aggregation != nil {
			interval = sql.NullInt64{Int64: m.Aggregation.IntervalSeconds, Valid: true}
			method = sql.NullString{String: string(m.Aggregation.Method), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			m.SensorID, int(m.Type),
			m.Position.Longitude, m.Position.Latitude,
			m.Timestamp.UTC(), m.Unit, m.Value,
			interval, method,
		); err != nil {
			return 0, fmt.Errorf("insert measurement %d of sensor %d: %w", i, m.SensorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert batch: %w", err)
	}
	return int64(len(batch)), nil
}

// ClearForSensor deletes every measurement of sensorID. Only explicit
// re-ingestion resets call this.
func (s *Store) ClearForSensor(ctx context.Context, sensorID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM measurements WHERE sensor_id = $1`, sensorID)
	if err != nil {
		return 0, fmt.Errorf("clear measurements of sensor %d: %w", sensorID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear measurements of sensor %d: %w", sensorID, err)
	}
	return n, nil
}

// Measurements returns the stored measurements matching q, ordered by time.
func (s *Store) Measurements(ctx context.Context, q domain.MeasurementQuery) ([]domain.Measurement, error) {
	var (
		where = []string{"sensor_id = $1"}
		args  = []any{q.SensorID}
	)
	if q.Type != nil {
		args = append(args, int(*q.Type))
		where = append(where, fmt.Sprintf("measurement_type = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From.UTC())
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To.UTC())
		where = append(where, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	query := `SELECT measurement_id, measurement_type, ST_AsText(position), timestamp, unit, value,
	                 sensor_id, interval_seconds, aggregation_method
	          FROM measurements WHERE ` + strings.Join(where, " AND ") + ` ORDER BY timestamp`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query measurements of sensor %d: %w", q.SensorID, err)
	}
	defer rows.Close()

	var out []domain.Measurement
	for rows.Next() {
		var (
			id       int64
			code     int
			position string
			interval sql.NullInt64
			method   sql.NullString
			m        domain.Measurement
		)
		if err := rows.Scan(&id, &code, &position, &m.Timestamp, &m.Unit, &m.Value, &m.SensorID, &interval, &method); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		if m.Type, err = domain.MeasurementTypeFromCode(code); err != nil {
			return nil, err
		}
		if m.Position, err = domain.ParseWKTPoint(position); err != nil {
			return nil, err
		}
		m.ID = domain.AssignedID(id)
		m.Timestamp = m.Timestamp.UTC()
		if interval.Valid {
			m.Aggregation = &domain.Aggregation{
				IntervalSeconds: interval.Int64,
				Method:          domain.AggregationMethod(method.String),
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
