package netatmo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/observability"
)

const publicMeasuresFixture = `{
  "status": "ok",
  "body": [
    {
      "_id": "70:ee:50:00:00:01",
      "place": {"location": [9.99, 53.55], "altitude": 12, "city": "Hamburg", "country": "DE"},
      "measures": {
        "02:00:00:00:00:01": {"res": {"1700000000": [7.5, 81]}, "type": ["temperature", "humidity"]},
        "70:ee:50:00:00:01": {"res": {"1700000000": [1012.3]}, "type": ["pressure"]}
      }
    },
    {
      "_id": "70:ee:50:00:00:02",
      "place": {"location": [10.01, 53.56], "city": "Hamburg"},
      "measures": {
        "05:00:00:00:00:02": {"rain_60min": 0.2, "rain_24h": 1.4, "rain_live": 0, "rain_timeutc": 1700000000},
        "06:00:00:00:00:02": {"wind_strength": 12, "wind_angle": 230, "gust_strength": 20, "gust_angle": 240, "wind_timeutc": 1700000000}
      }
    },
    {"_id": "", "place": {"location": [10.0, 53.5]}, "measures": {}},
    {"_id": "70:ee:50:00:00:04", "place": {"location": [10.0]}, "measures": {}},
    {"_id": "70:ee:50:00:00:05", "place": {"location": [10.0, 95.0]}, "measures": {}},
    {"_id": "70:ee:50:00:00:06", "place": {"location": [10.0, 53.5]}}
  ]
}`

func testTile() domain.Rectangle {
	return domain.Rectangle{
		NorthEast: domain.Position{Latitude: 53.6, Longitude: 10.1},
		SouthWest: domain.Position{Latitude: 53.5, Longitude: 9.9},
	}
}

func TestDiscoverSensors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/getpublicmeasures", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, "7", q.Get("divider"))
		assert.Equal(t, "7", q.Get("quality"))
		assert.Equal(t, "12", q.Get("zoom"))
		assert.Equal(t, "last", q.Get("date_end"))
		assert.Equal(t, "53.6", q.Get("lat_ne"))
		assert.Equal(t, "10.1", q.Get("lon_ne"))
		assert.Equal(t, "53.5", q.Get("lat_sw"))
		assert.Equal(t, "9.9", q.Get("lon_sw"))
		assert.Equal(t, testToken, q.Get("access_token"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, publicMeasuresFixture)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, observability.NewMetricsForTesting())
	sensors := c.DiscoverSensors(context.Background(), testTile())
	require.Len(t, sensors, 2)

	first := sensors[0]
	assert.Equal(t, "70:ee:50:00:00:01", first.OriginalID)
	assert.Equal(t, domain.SourceNetatmo, first.Source)
	assert.InDelta(t, 53.55, first.Position.Latitude, 1e-9)
	assert.InDelta(t, 9.99, first.Position.Longitude, 1e-9)
	assert.Equal(t, "Hamburg, DE", first.AdditionalInformation)
	assert.False(t, first.ID.IsAssigned())

	modules, err := ParseModules(first.SensorType)
	require.NoError(t, err)
	assert.Equal(t, []Module{
		{ModuleID: "02:00:00:00:00:01", Types: []string{"temperature", "humidity"}},
		{ModuleID: "70:ee:50:00:00:01", Types: []string{"pressure"}},
	}, modules)
	assert.Equal(t, []domain.MeasurementType{domain.Temperature, domain.Humidity, domain.Pressure}, c.ReportedTypes(first))

	second := sensors[1]
	modules, err = ParseModules(second.SensorType)
	require.NoError(t, err)
	assert.Equal(t, []Module{
		{ModuleID: "05:00:00:00:00:02", Types: rainTypes},
		{ModuleID: "06:00:00:00:00:02", Types: windTypes},
	}, modules)
	assert.Equal(t, []domain.MeasurementType{
		domain.Rain60Min, domain.Rain24h, domain.RainLive,
		domain.WindStrength, domain.WindAngle, domain.GustStrength, domain.GustAngle,
	}, c.ReportedTypes(second))
}

func TestDiscoverSensors_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":{"code":21,"message":"Invalid argument"}}`)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"body": [`)
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"status":"ok","body":[]}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := testClient(t, srv.URL, observability.NewMetricsForTesting())
			assert.Empty(t, c.DiscoverSensors(context.Background(), testTile()))
		})
	}
}

func TestDiscoverSensors_CancelledContext(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(t, srv.URL, observability.NewMetricsForTesting())
	assert.Empty(t, c.DiscoverSensors(ctx, testTile()))
	assert.False(t, called)
}

func TestParseModules(t *testing.T) {
	for _, descriptor := range []string{"", "  ", "[]", "not json"} {
		_, err := ParseModules(descriptor)
		require.ErrorIs(t, err, domain.ErrNoTypeDescriptor, "descriptor %q", descriptor)
	}

	encoded, err := EncodeModules([]Module{{ModuleID: "m1", Types: []string{"rain"}}})
	require.NoError(t, err)
	modules, err := ParseModules(encoded)
	require.NoError(t, err)
	assert.Equal(t, "m1", modules[0].ModuleID)
}

func TestParseMeasureBody(t *testing.T) {
	rows, err := parseMeasureBody([]byte(`{"status":"ok","body":[]}`))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = parseMeasureBody([]byte(`{"body":{"1700000600":[2.5],"1700000000":[null],"junk":[1]}}`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1700000000), rows[0].ts)
	assert.Nil(t, rows[0].value)
	require.NotNil(t, rows[1].value)
	assert.Equal(t, 2.5, *rows[1].value)

	_, err = parseMeasureBody([]byte(`{"body":`))
	require.Error(t, err)
}

func TestSeriesField(t *testing.T) {
	assert.Equal(t, "windstrength", seriesField("wind_strength"))
	assert.Equal(t, "gustangle", seriesField("Gust_Angle"))
	assert.Equal(t, "temperature", seriesField("temperature"))
}
