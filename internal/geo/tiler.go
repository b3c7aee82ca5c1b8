// Package geo splits bounding boxes into discovery tiles using ellipsoidal
// (WGS84) geodesics rather than flat degree arithmetic.
package geo

import (
	"fmt"
	"math"

	"github.com/tidwall/geodesic"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

// Bearings in degrees clockwise from north.
const (
	bearingNorth = 0
	bearingEast  = 90
)

// coverEpsilon absorbs floating-point drift when an edge lands on the area
// border (about 0.1 mm at the equator). A step that ends within it of the
// border is snapped onto the border.
const coverEpsilon = 1e-9

// Subdivide splits area into a row-major grid of tiles with edges of
// tileEdgeMeters. Rows advance north from the south-west corner; within a row,
// columns advance east from the area's west edge. The last row and column may
// overshoot the area so that the union of tiles always covers it, borders
// included.
//
// Steps are clamped to the coordinate range: a column that would wrap past
// longitude 180 ends at 180 and a row that would cross the pole ends at 90.
// Those tiles may be shorter than tileEdgeMeters.
//
// An area with zero width or height is returned unchanged as the single,
// degenerate tile.
//
// The result depends only on the arguments.
func Subdivide(area domain.Rectangle, tileEdgeMeters int) ([]domain.Rectangle, error) {
	if tileEdgeMeters <= 0 {
		return nil, fmt.Errorf("%w: tile edge must be positive, got %d", domain.ErrInvalidInput, tileEdgeMeters)
	}
	if err := area.Validate(); err != nil {
		return nil, fmt.Errorf("subdivide %s: %w", area, err)
	}

	sw, ne := area.SouthWest, area.NorthEast
	if sw.Latitude == ne.Latitude || sw.Longitude == ne.Longitude {
		return []domain.Rectangle{area}, nil
	}
	edge := float64(tileEdgeMeters)

	var tiles []domain.Rectangle
	lat := sw.Latitude
	for {
		nextLat := stepNorth(lat, sw.Longitude, edge)
		lastRow := nextLat >= ne.Latitude-coverEpsilon
		if lastRow {
			nextLat = math.Max(nextLat, ne.Latitude)
		}

		lon := sw.Longitude
		for {
			nextLon := stepEast(lat, lon, edge)
			lastCol := nextLon >= ne.Longitude-coverEpsilon
			if lastCol {
				nextLon = math.Max(nextLon, ne.Longitude)
			}
			tiles = append(tiles, domain.Rectangle{
				SouthWest: domain.Position{Latitude: lat, Longitude: lon},
				NorthEast: domain.Position{Latitude: nextLat, Longitude: nextLon},
			})
			if lastCol {
				break
			}
			lon = nextLon
		}

		if lastRow {
			break
		}
		lat = nextLat
	}
	return tiles, nil
}

// stepNorth returns the latitude reached after meters due north, or 90 when
// the step reaches or crosses the pole.
func stepNorth(lat, lon, meters float64) float64 {
	if lat >= 90 {
		return 90
	}
	var lat2, azi2 float64
	geodesic.WGS84.Direct(lat, lon, bearingNorth, meters, &lat2, nil, &azi2)
	if math.Abs(azi2) > 90 || lat2 <= lat {
		return 90
	}
	return lat2
}

// stepEast returns the longitude reached after meters due east, or 180 when
// the step wraps past the antimeridian.
func stepEast(lat, lon, meters float64) float64 {
	_, lon2 := destination(lat, lon, bearingEast, meters)
	if lon2 <= lon {
		return 180
	}
	return lon2
}

// Distance returns the geodesic distance between a and b in meters.
func Distance(a, b domain.Position) float64 {
	var s12 float64
	geodesic.WGS84.Inverse(a.Latitude, a.Longitude, b.Latitude, b.Longitude, &s12, nil, nil)
	return s12
}

// Size returns the width (along the northern edge) and height (along the
// eastern edge) of r in meters.
func Size(r domain.Rectangle) (width, height float64) {
	ne := r.NorthEast
	width = Distance(ne, domain.Position{Latitude: ne.Latitude, Longitude: r.SouthWest.Longitude})
	height = Distance(ne, domain.Position{Latitude: r.SouthWest.Latitude, Longitude: ne.Longitude})
	return width, height
}

// Destination projects p by meters along bearing (degrees from north).
func Destination(p domain.Position, bearing, meters float64) domain.Position {
	lat, lon := destination(p.Latitude, p.Longitude, bearing, meters)
	return domain.Position{Latitude: lat, Longitude: lon}
}

func destination(lat, lon, bearing, meters float64) (float64, float64) {
	var lat2, lon2 float64
	geodesic.WGS84.Direct(lat, lon, bearing, meters, &lat2, &lon2, nil)
	return lat2, lon2
}
