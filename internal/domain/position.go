package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a WGS84 latitude/longitude pair in degrees.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Validate checks that the position lies within the WGS84 coordinate range.
func (p Position) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrInvalidInput, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrInvalidInput, p.Longitude)
	}
	return nil
}

// WKT renders the position as a well-known-text point. WKT uses lon/lat order.
func (p Position) WKT() string {
	return fmt.Sprintf("POINT(%s %s)",
		strconv.FormatFloat(p.Longitude, 'f', -1, 64),
		strconv.FormatFloat(p.Latitude, 'f', -1, 64),
	)
}

func (p Position) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Latitude, p.Longitude)
}

// ParseWKTPoint parses "POINT(lon lat)" as returned by ST_AsText.
func ParseWKTPoint(wkt string) (Position, error) {
	s := strings.TrimSpace(wkt)
	if !strings.HasPrefix(strings.ToUpper(s), "POINT") {
		return Position{}, fmt.Errorf("parse wkt point %q: not a point", wkt)
	}
	s = strings.TrimSpace(s[len("POINT"):])
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")

	coords := strings.Fields(s)
	if len(coords) != 2 {
		return Position{}, fmt.Errorf("parse wkt point %q: want 2 coordinates, got %d", wkt, len(coords))
	}
	lon, err := strconv.ParseFloat(coords[0], 64)
	if err != nil {
		return Position{}, fmt.Errorf("parse wkt point %q: %w", wkt, err)
	}
	lat, err := strconv.ParseFloat(coords[1], 64)
	if err != nil {
		return Position{}, fmt.Errorf("parse wkt point %q: %w", wkt, err)
	}
	return Position{Latitude: lat, Longitude: lon}, nil
}

// Rectangle is a bounding box given by its north-east and south-west corners.
// It must not cross the antimeridian.
type Rectangle struct {
	NorthEast Position `json:"north_east"`
	SouthWest Position `json:"south_west"`
}

// Validate checks both corners and their ordering.
func (r Rectangle) Validate() error {
	if err := r.NorthEast.Validate(); err != nil {
		return fmt.Errorf("north-east corner: %w", err)
	}
	if err := r.SouthWest.Validate(); err != nil {
		return fmt.Errorf("south-west corner: %w", err)
	}
	if r.NorthEast.Latitude < r.SouthWest.Latitude {
		return fmt.Errorf("%w: north-east latitude %v below south-west latitude %v",
			ErrInvalidInput, r.NorthEast.Latitude, r.SouthWest.Latitude)
	}
	if r.NorthEast.Longitude < r.SouthWest.Longitude {
		return fmt.Errorf("%w: north-east longitude %v west of south-west longitude %v",
			ErrInvalidInput, r.NorthEast.Longitude, r.SouthWest.Longitude)
	}
	return nil
}

// Contains reports whether p lies inside r, borders included.
func (r Rectangle) Contains(p Position) bool {
	return p.Latitude >= r.SouthWest.Latitude && p.Latitude <= r.NorthEast.Latitude &&
		p.Longitude >= r.SouthWest.Longitude && p.Longitude <= r.NorthEast.Longitude
}

func (r Rectangle) String() string {
	return fmt.Sprintf("[sw=%s ne=%s]", r.SouthWest, r.NorthEast)
}
