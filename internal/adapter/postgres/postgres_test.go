package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, New(db)
}

func testSensor() domain.Sensor {
	return domain.Sensor{
		OriginalID:            "70:ee:50:00:00:01",
		Source:                domain.SourceNetatmo,
		Position:              domain.Position{Latitude: 53.55, Longitude: 9.99},
		SensorType:            `[{"module_id":"02:00:00:00:00:01","types":["temperature"]}]`,
		AdditionalInformation: "Hamburg, DE",
	}
}

var sensorRowColumns = []string{"sensor_id", "original_id", "source", "st_astext", "sensor_type", "additional_information"}

func TestUpsertSensor_Created(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	s := testSensor()
	mock.ExpectQuery(`INSERT INTO sensors .* ON CONFLICT \(original_id, source\) DO UPDATE`).
		WithArgs(s.OriginalID, "Netatmo", 9.99, 53.55, s.SensorType, s.AdditionalInformation).
		WillReturnRows(sqlmock.NewRows([]string{"sensor_id", "created"}).AddRow(int64(7), true))

	got, created, err := store.UpsertSensor(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(7), got.ID.Int64())
	assert.False(t, s.ID.IsAssigned(), "input is not mutated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSensor_UpdatedKeepsID(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	s := testSensor()
	require.NoError(t, s.AssignID(7))

	mock.ExpectQuery(`SELECT sensor_id, original_id, source, ST_AsText\(position\)`).
		WithArgs(s.OriginalID, "Netatmo").
		WillReturnRows(sqlmock.NewRows(sensorRowColumns).
			AddRow(int64(7), s.OriginalID, "Netatmo", "POINT(9.99 53.55)", s.SensorType, ""))
	mock.ExpectQuery(`INSERT INTO sensors`).
		WillReturnRows(sqlmock.NewRows([]string{"sensor_id", "created"}).AddRow(int64(7), false))

	got, created, err := store.UpsertSensor(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(7), got.ID.Int64())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSensor_IdentityViolationWritesNothing(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	s := testSensor()
	require.NoError(t, s.AssignID(99))

	mock.ExpectQuery(`SELECT sensor_id`).
		WithArgs(s.OriginalID, "Netatmo").
		WillReturnRows(sqlmock.NewRows(sensorRowColumns).
			AddRow(int64(7), s.OriginalID, "Netatmo", "POINT(9.99 53.55)", "", ""))

	_, _, err := store.UpsertSensor(context.Background(), s)
	require.ErrorIs(t, err, domain.ErrIDAlreadyAssigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSensor_AssignedIDWithoutStoredRowWritesNothing(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	s := testSensor()
	require.NoError(t, s.AssignID(99))

	mock.ExpectQuery(`SELECT sensor_id`).
		WithArgs(s.OriginalID, "Netatmo").
		WillReturnError(sql.ErrNoRows)

	_, _, err := store.UpsertSensor(context.Background(), s)
	require.ErrorIs(t, err, domain.ErrIDAlreadyAssigned)
	// No INSERT expectation: any write would fail the mock.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSensor_DBError(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO sensors`).WillReturnError(errors.New("connection reset"))

	_, _, err := store.UpsertSensor(context.Background(), testSensor())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSensorByOriginalID_NotFound(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT sensor_id`).
		WithArgs("00044", "DWD").
		WillReturnError(sql.ErrNoRows)

	_, found, err := store.SensorByOriginalID(context.Background(), "00044", domain.SourceDWD)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSensorsInArea(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	area := domain.Rectangle{
		SouthWest: domain.Position{Latitude: 53.4, Longitude: 9.7},
		NorthEast: domain.Position{Latitude: 53.7, Longitude: 10.3},
	}
	mock.ExpectQuery(`ST_MakeEnvelope\(\$1, \$2, \$3, \$4, 4326\)`).
		WithArgs(9.7, 53.4, 10.3, 53.7).
		WillReturnRows(sqlmock.NewRows(sensorRowColumns).
			AddRow(int64(1), "a", "Netatmo", "POINT(9.9 53.5)", "[]", "").
			AddRow(int64(2), "01975", "DWD", "POINT(10.0 53.6)", "", "Hamburg-Fuhlsbüttel"))

	sensors, err := store.SensorsInArea(context.Background(), area)
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, domain.SourceDWD, sensors[1].Source)
	assert.Equal(t, domain.Position{Latitude: 53.6, Longitude: 10.0}, sensors[1].Position)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = store.SensorsInArea(context.Background(), domain.Rectangle{
		SouthWest: area.NorthEast, NorthEast: area.SouthWest,
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLinkMeasurementType(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO sensor_measurement_types .* ON CONFLICT DO NOTHING`).
		WithArgs(int64(3), int64(domain.Humidity)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.LinkMeasurementType(context.Background(), 3, domain.Humidity))
	require.ErrorIs(t, store.LinkMeasurementType(context.Background(), 3, domain.MeasurementTypeUnknown), domain.ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestTimestamp(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT MAX\(timestamp\) FROM measurements`).
		WithArgs(int64(3), int64(domain.Temperature)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(ts))
	mock.ExpectQuery(`SELECT MAX\(timestamp\) FROM measurements`).
		WithArgs(int64(3), int64(domain.Humidity)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	got, err := store.LatestTimestamp(context.Background(), 3, domain.Temperature)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ts, *got)

	got, err = store.LatestTimestamp(context.Background(), 3, domain.Humidity)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	pos := domain.Position{Latitude: 53.63, Longitude: 9.99}
	batch := []domain.Measurement{
		{Type: domain.Temperature, Position: pos, Timestamp: ts, Unit: "Celsius", Value: 12.5, SensorID: 3},
		{
			Type: domain.GustStrength24hMax, Position: pos, Timestamp: ts, Unit: "km/h", Value: 40, SensorID: 3,
			Aggregation: &domain.Aggregation{IntervalSeconds: 86400, Method: domain.AggregationMax},
		},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO measurements`)
	prep.ExpectExec().
		WithArgs(int64(3), int64(domain.Temperature), 9.99, 53.63, ts, "Celsius", 12.5, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(int64(3), int64(domain.GustStrength24hMax), 9.99, 53.63, ts, "km/h", 40.0, int64(86400), "MAX").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	n, err := store.InsertBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_RollbackOnError(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO measurements`)
	prep.ExpectExec().WillReturnError(errors.New("foreign key violation"))
	mock.ExpectRollback()

	_, err := store.InsertBatch(context.Background(), []domain.Measurement{
		{Type: domain.Temperature, Timestamp: ts, SensorID: 404},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_RejectsUnknownTypeBeforeTouchingDB(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	_, err := store.InsertBatch(context.Background(), []domain.Measurement{
		{Type: domain.MeasurementTypeUnknown, Timestamp: time.Now(), SensorID: 1},
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	n, err := store.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearForSensor(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM measurements WHERE sensor_id = \$1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := store.ClearForSensor(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMeasurements_Query(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mt := domain.Temperature24h

	mock.ExpectQuery(`FROM measurements WHERE sensor_id = \$1 AND measurement_type = \$2 AND timestamp >= \$3 ORDER BY timestamp`).
		WithArgs(int64(3), int64(mt), from).
		WillReturnRows(sqlmock.NewRows([]string{
			"measurement_id", "measurement_type", "st_astext", "timestamp", "unit", "value",
			"sensor_id", "interval_seconds", "aggregation_method",
		}).AddRow(int64(11), int64(mt), "POINT(9.99 53.63)", ts, "Celsius", 4.2, int64(3), int64(86400), "AVERAGE"))

	got, err := store.Measurements(context.Background(), domain.MeasurementQuery{SensorID: 3, Type: &mt, From: from})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(11), got[0].ID.Int64())
	assert.Equal(t, mt, got[0].Type)
	require.NotNil(t, got[0].Aggregation)
	assert.Equal(t, domain.AggregationAverage, got[0].Aggregation.Method)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	stmts := schemaStatements()
	require.Len(t, stmts, 6)
	for range stmts {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithRetry(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("the database system is starting up"))
	mock.ExpectPing()

	require.NoError(t, pingWithRetry(context.Background(), db, 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithRetry_GivesUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	refused := errors.New("connection refused")
	mock.ExpectPing().WillReturnError(refused)
	mock.ExpectPing().WillReturnError(refused)

	err = pingWithRetry(context.Background(), db, 2)
	require.ErrorIs(t, err, refused)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckReadiness(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	mock.ExpectPing()
	require.NoError(t, store.CheckReadiness(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.Error(t, store.CheckReadiness(context.Background()))
}
