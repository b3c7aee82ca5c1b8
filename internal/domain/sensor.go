package domain

import (
	"fmt"
	"strings"
)

// Source identifies the remote system a sensor originates from.
type Source string

const (
	SourceNetatmo Source = "Netatmo"
	SourceDWD     Source = "DWD"
)

// ParseSource resolves a source name case-insensitively.
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, string(SourceNetatmo)):
		return SourceNetatmo, nil
	case strings.EqualFold(s, string(SourceDWD)):
		return SourceDWD, nil
	default:
		return "", fmt.Errorf("%w: unknown source %q", ErrInvalidInput, s)
	}
}

// Sensor is a physical station registered in the store. Identity is
// (OriginalID, Source); ID is the surrogate assigned on first insert.
type Sensor struct {
	ID                    SurrogateID `json:"sensor_id"`
	OriginalID            string      `json:"original_id"`
	Source                Source      `json:"source"`
	Position              Position    `json:"position"`
	AdditionalInformation string      `json:"additional_information,omitempty"`

	// SensorType is a source-specific descriptor, e.g. the serialized module
	// list of a multi-module Netatmo station.
	SensorType string `json:"sensor_type,omitempty"`
}

// AssignID sets the surrogate id. See SurrogateID.Assign.
func (s *Sensor) AssignID(id int64) error {
	assigned, err := s.ID.Assign(id)
	if err != nil {
		return fmt.Errorf("sensor %s/%s: %w", s.Source, s.OriginalID, err)
	}
	s.ID = assigned
	return nil
}

// Key returns the identity key of the sensor.
func (s Sensor) Key() string {
	return string(s.Source) + "|" + s.OriginalID
}
