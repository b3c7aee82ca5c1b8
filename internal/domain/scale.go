package domain

import (
	"fmt"
	"strings"
	"time"
)

// Scale is the reporting granularity requested from a source.
type Scale string

const (
	ScaleLatest Scale = "latest"
	Scale30Min  Scale = "30min"
	Scale1Hour  Scale = "1hour"
	Scale3Hours Scale = "3hours"
	Scale1Day   Scale = "1day"
	Scale1Week  Scale = "1week"
	Scale1Month Scale = "1month"
)

var scaleIntervals = map[Scale]time.Duration{
	ScaleLatest: 0,
	Scale30Min:  30 * time.Minute,
	Scale1Hour:  time.Hour,
	Scale3Hours: 3 * time.Hour,
	Scale1Day:   24 * time.Hour,
	Scale1Week:  7 * 24 * time.Hour,
	Scale1Month: 30 * 24 * time.Hour,
}

// ParseScale validates a scale name.
func ParseScale(s string) (Scale, error) {
	scale := Scale(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := scaleIntervals[scale]; !ok {
		return "", fmt.Errorf("%w: unknown scale %q", ErrInvalidInput, s)
	}
	return scale, nil
}

// Valid reports whether s is one of the known scales.
func (s Scale) Valid() bool {
	_, ok := scaleIntervals[s]
	return ok
}

// Interval is the aggregation interval of the scale; zero for latest.
// 1month is approximated as 30 days.
func (s Scale) Interval() time.Duration {
	return scaleIntervals[s]
}

// IsDaily reports whether values at this scale are daily (or coarser) aggregates.
func (s Scale) IsDaily() bool {
	return s.Interval() >= 24*time.Hour
}
