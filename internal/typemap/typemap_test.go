package typemap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

func TestMapField(t *testing.T) {
	tests := []struct {
		name   string
		source domain.Source
		scale  domain.Scale
		field  string
		want   domain.MeasurementType
	}{
		{"netatmo latest temperature", domain.SourceNetatmo, domain.ScaleLatest, "temperature", domain.Temperature},
		{"netatmo daily temperature", domain.SourceNetatmo, domain.Scale1Day, "temperature", domain.Temperature24h},
		{"netatmo daily min temp", domain.SourceNetatmo, domain.Scale1Day, "min_temp", domain.Temperature24hMin},
		{"netatmo discovery spelling", domain.SourceNetatmo, domain.Scale30Min, "wind_strength", domain.WindStrength},
		{"netatmo series spelling", domain.SourceNetatmo, domain.Scale30Min, "WindStrength", domain.WindStrength},
		{"netatmo weekly uses daily table", domain.SourceNetatmo, domain.Scale1Week, "max_gust", domain.GustStrength24hMax},
		{"min_temp has no instantaneous type", domain.SourceNetatmo, domain.Scale1Hour, "min_temp", domain.MeasurementTypeUnknown},
		{"dwd temperature", domain.SourceDWD, domain.Scale1Day, "TMK", domain.Temperature24h},
		{"dwd snow", domain.SourceDWD, domain.Scale1Day, "SHK_TAG", domain.Snow24h},
		{"dwd time column is not a field", domain.SourceDWD, domain.Scale1Day, "MESS_DATUM", domain.MeasurementTypeUnknown},
		{"dwd has no instantaneous table", domain.SourceDWD, domain.ScaleLatest, "TMK", domain.MeasurementTypeUnknown},
		{"unknown field", domain.SourceNetatmo, domain.ScaleLatest, "co2", domain.MeasurementTypeUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapField(tc.source, tc.scale, tc.field))
		})
	}
}

func TestLookup_FactorAndMethod(t *testing.T) {
	m, ok := Lookup(domain.SourceDWD, domain.Scale1Day, "FX")
	assert.True(t, ok)
	assert.Equal(t, domain.GustStrength24hMax, m.Type)
	assert.Equal(t, domain.AggregationMax, m.Method)
	assert.InDelta(t, 36.0, m.Apply(10), 1e-9)
	assert.Equal(t, "km/h", m.Unit())

	m, ok = Lookup(domain.SourceDWD, domain.Scale1Day, "TMK")
	assert.True(t, ok)
	assert.Equal(t, domain.AggregationAverage, m.Method)
	assert.Equal(t, 12.5, m.Apply(12.5))

	m, ok = Lookup(domain.SourceNetatmo, domain.Scale1Day, "sum_rain")
	assert.True(t, ok)
	assert.Equal(t, domain.AggregationSum, m.Method)

	_, ok = Lookup(domain.SourceNetatmo, domain.Scale1Day, "noise")
	assert.False(t, ok)
}

func TestTables_NeverMapToUnknown(t *testing.T) {
	for key, table := range tables {
		for field, m := range table {
			assert.True(t, m.Type.Valid(), "%s/%d field %s", key.source, key.class, field)
			assert.NotZero(t, m.Factor, "%s field %s", key.source, field)
			assert.NotEmpty(t, m.Method, "%s field %s", key.source, field)
		}
	}
}

func TestUnitFor(t *testing.T) {
	assert.Equal(t, "mm", UnitFor(domain.Rain24h))
	assert.Equal(t, "Unknown", UnitFor(domain.MeasurementTypeUnknown))
}

func TestFields_Sorted(t *testing.T) {
	fields := Fields(domain.SourceDWD, domain.Scale1Day)
	assert.Len(t, fields, 11)
	assert.IsIncreasing(t, fields)
	assert.Empty(t, Fields(domain.SourceDWD, domain.ScaleLatest))
}

func TestExpandFields(t *testing.T) {
	tests := []struct {
		name      string
		reported  []string
		requested []string
		want      []string
	}{
		{
			name:      "no filter selects reported only",
			reported:  []string{"temperature", "humidity"},
			requested: nil,
			want:      []string{"temperature", "humidity"},
		},
		{
			name:      "family with explicitly requested sub-fields",
			reported:  []string{"temperature", "humidity"},
			requested: []string{"temperature", "min_temp", "max_temp"},
			want:      []string{"temperature", "min_temp", "max_temp"},
		},
		{
			name:      "sub-field not requested is not added",
			reported:  []string{"temperature"},
			requested: []string{"temperature"},
			want:      []string{"temperature"},
		},
		{
			name:      "sub-field of an unreported family is ignored",
			reported:  []string{"pressure"},
			requested: []string{"max_temp", "pressure"},
			want:      []string{"pressure"},
		},
		{
			name:      "case and duplicates",
			reported:  []string{"Rain", "rain"},
			requested: []string{"RAIN", "sum_rain"},
			want:      []string{"rain", "sum_rain"},
		},
		{
			name:      "nothing requested is reported",
			reported:  []string{"wind_strength"},
			requested: []string{"temperature"},
			want:      nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExpandFields(tc.reported, tc.requested))
		})
	}
}
