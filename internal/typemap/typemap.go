// Package typemap translates source field and column names into canonical
// measurement types. Tables are keyed by source and scale class; a field
// missing from the table maps to domain.MeasurementTypeUnknown and is skipped
// by callers.
package typemap

import (
	"sort"
	"strings"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

// Mapping is the canonical translation of one source field.
type Mapping struct {
	Type domain.MeasurementType

	// Factor converts the source unit into the canonical unit of Type.
	Factor float64

	// Method describes how the source aggregated the value when the
	// requested scale is not instantaneous.
	Method domain.AggregationMethod
}

// Apply converts a raw source value into the canonical unit.
func (m Mapping) Apply(v float64) float64 {
	if m.Factor == 0 || m.Factor == 1 {
		return v
	}
	return v * m.Factor
}

// Unit returns the canonical unit of the mapped type.
func (m Mapping) Unit() string {
	return m.Type.Unit()
}

type scaleClass int

const (
	instantaneous scaleClass = iota
	daily
)

type tableKey struct {
	source domain.Source
	class  scaleClass
}

// m/s to km/h
const msToKmh = 3.6

func average(t domain.MeasurementType) Mapping {
	return Mapping{Type: t, Factor: 1, Method: domain.AggregationAverage}
}
func minimum(t domain.MeasurementType) Mapping {
	return Mapping{Type: t, Factor: 1, Method: domain.AggregationMin}
}
func maximum(t domain.MeasurementType) Mapping {
	return Mapping{Type: t, Factor: 1, Method: domain.AggregationMax}
}
func total(t domain.MeasurementType) Mapping {
	return Mapping{Type: t, Factor: 1, Method: domain.AggregationSum}
}

// Keys are lower case. Netatmo reports discovery types with underscores
// (wind_strength) and accepts series types without (windstrength); both
// spellings are listed.
var tables = map[tableKey]map[string]Mapping{
	{domain.SourceNetatmo, instantaneous}: {
		"pressure":      average(domain.Pressure),
		"temperature":   average(domain.Temperature),
		"humidity":      average(domain.Humidity),
		"windstrength":  average(domain.WindStrength),
		"wind_strength": average(domain.WindStrength),
		"windangle":     average(domain.WindAngle),
		"wind_angle":    average(domain.WindAngle),
		"guststrength":  maximum(domain.GustStrength),
		"gust_strength": maximum(domain.GustStrength),
		"gustangle":     average(domain.GustAngle),
		"gust_angle":    average(domain.GustAngle),
		"rain":          total(domain.Rain60Min),
		"sum_rain":      total(domain.Rain60Min),
		"rain_60min":    total(domain.Rain60Min),
		"rain_24h":      total(domain.Rain24h),
		"rain_live":     average(domain.RainLive),
	},
	{domain.SourceNetatmo, daily}: {
		"pressure":      average(domain.Pressure24h),
		"min_pressure":  minimum(domain.Pressure24hMin),
		"max_pressure":  maximum(domain.Pressure24hMax),
		"temperature":   average(domain.Temperature24h),
		"min_temp":      minimum(domain.Temperature24hMin),
		"max_temp":      maximum(domain.Temperature24hMax),
		"humidity":      average(domain.Humidity24h),
		"min_hum":       minimum(domain.Humidity24hMin),
		"max_hum":       maximum(domain.Humidity24hMax),
		"windstrength":  average(domain.WindStrength24h),
		"wind_strength": average(domain.WindStrength24h),
		"windangle":     average(domain.WindAngle24h),
		"wind_angle":    average(domain.WindAngle24h),
		"guststrength":  average(domain.GustStrength24h),
		"gust_strength": average(domain.GustStrength24h),
		"max_gust":      maximum(domain.GustStrength24hMax),
		"gustangle":     average(domain.GustAngle24h),
		"gust_angle":    average(domain.GustAngle24h),
		"rain":          total(domain.Rain24h),
		"sum_rain":      total(domain.Rain24h),
		"rain_24h":      total(domain.Rain24h),
	},
	{domain.SourceDWD, daily}: {
		"tmk":     average(domain.Temperature24h),
		"txk":     maximum(domain.Temperature24hMax),
		"tnk":     minimum(domain.Temperature24hMin),
		"upm":     average(domain.Humidity24h),
		"pm":      average(domain.Pressure24h),
		"fm":      {Type: domain.WindStrength24h, Factor: msToKmh, Method: domain.AggregationAverage},
		"fx":      {Type: domain.GustStrength24hMax, Factor: msToKmh, Method: domain.AggregationMax},
		"rsk":     average(domain.Rain24h),
		"sdk":     average(domain.Sun24h),
		"shk_tag": average(domain.Snow24h),
		"nm":      average(domain.CloudCoverage24h),
	},
}

func classOf(scale domain.Scale) scaleClass {
	if scale.IsDaily() {
		return daily
	}
	return instantaneous
}

// Lookup returns the mapping of field for the given source and scale.
func Lookup(source domain.Source, scale domain.Scale, field string) (Mapping, bool) {
	table, ok := tables[tableKey{source, classOf(scale)}]
	if !ok {
		return Mapping{Type: domain.MeasurementTypeUnknown}, false
	}
	m, ok := table[strings.ToLower(strings.TrimSpace(field))]
	if !ok {
		return Mapping{Type: domain.MeasurementTypeUnknown}, false
	}
	return m, true
}

// MapField returns the canonical type of field, or MeasurementTypeUnknown.
func MapField(source domain.Source, scale domain.Scale, field string) domain.MeasurementType {
	m, _ := Lookup(source, scale, field)
	return m.Type
}

// UnitFor returns the canonical unit of t.
func UnitFor(t domain.MeasurementType) string {
	return t.Unit()
}

// Fields lists the field names known for source at scale, sorted.
func Fields(source domain.Source, scale domain.Scale) []string {
	table := tables[tableKey{source, classOf(scale)}]
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stream is one series to fetch for a sensor: a source field, the module that
// reports it (empty for single-module sources) and its canonical mapping.
type Stream struct {
	ModuleID string
	Field    string
	Mapping  Mapping
}
