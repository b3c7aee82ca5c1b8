package domain

import (
	"fmt"
	"strings"
)

// MeasurementType is the canonical measurement enumeration. Values are dense
// and start at zero; MeasurementTypeUnknown is the only negative value and is
// never persisted.
type MeasurementType int

const (
	MeasurementTypeUnknown MeasurementType = -1
)

const (
	Pressure MeasurementType = iota
	Temperature
	Humidity
	WindStrength
	WindAngle
	GustStrength
	GustAngle
	Rain60Min
	Rain24h
	RainLive
	Pressure24h
	Temperature24h
	Humidity24h
	WindStrength24h
	GustStrength24hMax
	CloudCoverage24h
	PrecipitationType
	Sun24h
	Snow24h
	Temperature24hMin
	Temperature24hMax
	Humidity24hMin
	Humidity24hMax
	Pressure24hMin
	Pressure24hMax
	WindAngle24h
	GustStrength24h
	GustAngle24h

	// MeasurementTypeCount is the number of known measurement types.
	MeasurementTypeCount int = iota
)

type typeInfo struct {
	name string
	unit string
}

var typeTable = [MeasurementTypeCount]typeInfo{
	Pressure:           {"PRESSURE", "mBar"},
	Temperature:        {"TEMPERATURE", "Celsius"},
	Humidity:           {"HUMIDITY", "percentage"},
	WindStrength:       {"WIND_STRENGTH", "km/h"},
	WindAngle:          {"WIND_ANGLE", "degrees"},
	GustStrength:       {"GUST_STRENGTH", "km/h"},
	GustAngle:          {"GUST_ANGLE", "degrees"},
	Rain60Min:          {"RAIN_60MIN", "mm"},
	Rain24h:            {"RAIN_24H", "mm"},
	RainLive:           {"RAIN_LIVE", "mm"},
	Pressure24h:        {"PRESSURE_24H", "mBar"},
	Temperature24h:     {"TEMPERATURE_24H", "Celsius"},
	Humidity24h:        {"HUMIDITY_24H", "percentage"},
	WindStrength24h:    {"WIND_STRENGTH_24H", "km/h"},
	GustStrength24hMax: {"GUST_STRENGTH_24H_MAX", "km/h"},
	CloudCoverage24h:   {"CLOUD_COVERAGE_24H", "eights"},
	PrecipitationType:  {"PRECIPITATION_TYPE", "code"},
	Sun24h:             {"SUN_24H", "hours"},
	Snow24h:            {"SNOW_24H", "mm"},
	Temperature24hMin:  {"TEMPERATURE_24H_MIN", "Celsius"},
	Temperature24hMax:  {"TEMPERATURE_24H_MAX", "Celsius"},
	Humidity24hMin:     {"HUMIDITY_24H_MIN", "percentage"},
	Humidity24hMax:     {"HUMIDITY_24H_MAX", "percentage"},
	Pressure24hMin:     {"PRESSURE_24H_MIN", "mBar"},
	Pressure24hMax:     {"PRESSURE_24H_MAX", "mBar"},
	WindAngle24h:       {"WIND_ANGLE_24H", "degrees"},
	GustStrength24h:    {"GUST_STRENGTH_24H", "km/h"},
	GustAngle24h:       {"GUST_ANGLE_24H", "degrees"},
}

// Valid reports whether t is a known, persistable type.
func (t MeasurementType) Valid() bool {
	return t >= 0 && int(t) < MeasurementTypeCount
}

// Unit returns the physical unit of t, or "Unknown".
func (t MeasurementType) Unit() string {
	if !t.Valid() {
		return "Unknown"
	}
	return typeTable[t].unit
}

func (t MeasurementType) String() string {
	if !t.Valid() {
		return "UNKNOWN"
	}
	return typeTable[t].name
}

// ParseMeasurementType resolves a canonical name such as "TEMPERATURE_24H".
// Unrecognized names yield MeasurementTypeUnknown.
func ParseMeasurementType(name string) MeasurementType {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i := range typeTable {
		if typeTable[i].name == name {
			return MeasurementType(i)
		}
	}
	return MeasurementTypeUnknown
}

// MeasurementTypeFromCode converts a stored integer code.
func MeasurementTypeFromCode(code int) (MeasurementType, error) {
	t := MeasurementType(code)
	if !t.Valid() {
		return MeasurementTypeUnknown, fmt.Errorf("%w: measurement type code %d", ErrInvalidInput, code)
	}
	return t, nil
}

// AllMeasurementTypes returns every known type in enumeration order.
func AllMeasurementTypes() []MeasurementType {
	out := make([]MeasurementType, MeasurementTypeCount)
	for i := range out {
		out[i] = MeasurementType(i)
	}
	return out
}
