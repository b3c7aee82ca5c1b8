package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

const sensorColumns = `sensor_id, original_id, source, ST_AsText(position), sensor_type, additional_information`

const upsertSensorSQL = `
INSERT INTO sensors (original_id, source, position, sensor_type, additional_information)
VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6)
ON CONFLICT (original_id, source) DO UPDATE
SET position = EXCLUDED.position,
    sensor_type = EXCLUDED.sensor_type,
    additional_information = EXCLUDED.additional_information
RETURNING sensor_id, (xmax = 0) AS created`

// UpsertSensor inserts the sensor or updates the mutable fields of the stored
// one with the same (original_id, source). The identity columns and the
// surrogate id are never updated.
func (s *Store) UpsertSensor(ctx context.Context, sensor domain.Sensor) (domain.Sensor, bool, error) {
	if sensor.OriginalID == "" {
		return domain.Sensor{}, false, fmt.Errorf("%w: sensor without original id", domain.ErrInvalidInput)
	}

	// A caller-held id must agree with the stored one before anything is written.
	if sensor.ID.IsAssigned() {
		stored, found, err := s.SensorByOriginalID(ctx, sensor.OriginalID, sensor.Source)
		if err != nil {
			return domain.Sensor{}, false, err
		}
		if !found {
			return domain.Sensor{}, false, fmt.Errorf("%w: sensor %s holds id %s but is not stored",
				domain.ErrIDAlreadyAssigned, sensor.Key(), sensor.ID)
		}
		if err := sensor.AssignID(stored.ID.Int64()); err != nil {
			return domain.Sensor{}, false, err
		}
	}

	var (
		id      int64
		created bool
	)
	err := s.db.QueryRowContext(ctx, upsertSensorSQL,
		sensor.OriginalID,
		string(sensor.Source),
		sensor.Position.Longitude,
		sensor.Position.Latitude,
		sensor.SensorType,
		sensor.AdditionalInformation,
	).Scan(&id, &created)
	if err != nil {
		return domain.Sensor{}, false, fmt.Errorf("upsert sensor %s: %w", sensor.Key(), err)
	}

	if err := sensor.AssignID(id); err != nil {
		return domain.Sensor{}, false, err
	}
	return sensor, created, nil
}

// SensorByOriginalID looks up a sensor by its identity.
func (s *Store) SensorByOriginalID(ctx context.Context, originalID string, source domain.Source) (domain.Sensor, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sensorColumns+` FROM sensors WHERE original_id = $1 AND source = $2`,
		originalID, string(source))

	sensor, err := scanSensor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sensor{}, false, nil
	}
	if err != nil {
		return domain.Sensor{}, false, fmt.Errorf("get sensor %s/%s: %w", source, originalID, err)
	}
	return sensor, true, nil
}

// SensorsInArea returns the sensors inside area, borders included.
func (s *Store) SensorsInArea(ctx context.Context, area domain.Rectangle) ([]domain.Sensor, error) {
	if err := area.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sensorColumns+` FROM sensors
		 WHERE ST_Covers(ST_MakeEnvelope($1, $2, $3, $4, 4326), position::geometry)
		 ORDER BY sensor_id`,
		area.SouthWest.Longitude, area.SouthWest.Latitude,
		area.NorthEast.Longitude, area.NorthEast.Latitude,
	)
	if err != nil {
		return nil, fmt.Errorf("query sensors in %s: %w", area, err)
	}
	defer rows.Close()

	var out []domain.Sensor
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		out = append(out, sensor)
	}
	return out, rows.Err()
}

// LinkMeasurementType records that a sensor reports t. Linking twice is a no-op.
func (s *Store) LinkMeasurementType(ctx context.Context, sensorID int64, t domain.MeasurementType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: cannot link measurement type %d", domain.ErrInvalidInput, int(t))
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_measurement_types (sensor_id, measurement_type)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		sensorID, int(t))
	if err != nil {
		return fmt.Errorf("link type %s to sensor %d: %w", t, sensorID, err)
	}
	return nil
}

// MeasurementTypes returns the linked types of a sensor in enumeration order.
func (s *Store) MeasurementTypes(ctx context.Context, sensorID int64) ([]domain.MeasurementType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT measurement_type FROM sensor_measurement_types
		 WHERE sensor_id = $1 ORDER BY measurement_type`, sensorID)
	if err != nil {
		return nil, fmt.Errorf("query types of sensor %d: %w", sensorID, err)
	}
	defer rows.Close()

	var out []domain.MeasurementType
	for rows.Next() {
		var code int
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan measurement type: %w", err)
		}
		t, err := domain.MeasurementTypeFromCode(code)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSensor(row scanner) (domain.Sensor, error) {
	var (
		id       int64
		source   string
		position string
		sensor   domain.Sensor
	)
	if err := row.Scan(&id, &sensor.OriginalID, &source, &position, &sensor.SensorType, &sensor.AdditionalInformation); err != nil {
		return domain.Sensor{}, err
	}
	pos, err := domain.ParseWKTPoint(position)
	if err != nil {
		return domain.Sensor{}, err
	}
	sensor.ID = domain.AssignedID(id)
	sensor.Source = domain.Source(source)
	sensor.Position = pos
	return sensor, nil
}
