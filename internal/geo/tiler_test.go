package geo

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

// squareFrom builds a box whose edges are sizeMeters long, starting at sw.
func squareFrom(sw domain.Position, sizeMeters float64) domain.Rectangle {
	north := Destination(sw, bearingNorth, sizeMeters)
	east := Destination(sw, bearingEast, sizeMeters)
	return domain.Rectangle{
		SouthWest: sw,
		NorthEast: domain.Position{Latitude: north.Latitude, Longitude: east.Longitude},
	}
}

func TestSubdivide_TwoKilometerBox(t *testing.T) {
	area := squareFrom(domain.Position{Latitude: 53.55, Longitude: 9.99}, 2000)

	tiles, err := Subdivide(area, 1000)
	require.NoError(t, err)
	require.Len(t, tiles, 4)

	for i, tile := range tiles {
		height := Distance(tile.SouthWest, domain.Position{
			Latitude:  tile.NorthEast.Latitude,
			Longitude: tile.SouthWest.Longitude,
		})
		assert.InDelta(t, 1000, height, 10, "tile %d height", i)
	}

	// Row-major: first row shares the southern latitude.
	assert.Equal(t, tiles[0].SouthWest.Latitude, tiles[1].SouthWest.Latitude)
	assert.Equal(t, tiles[0].NorthEast.Latitude, tiles[2].SouthWest.Latitude)
	assert.Equal(t, tiles[0].NorthEast.Longitude, tiles[1].SouthWest.Longitude)
}

func TestSubdivide_Deterministic(t *testing.T) {
	area := domain.Rectangle{
		SouthWest: domain.Position{Latitude: 53.4, Longitude: 9.7},
		NorthEast: domain.Position{Latitude: 53.7, Longitude: 10.3},
	}
	a, err := Subdivide(area, 2500)
	require.NoError(t, err)
	b, err := Subdivide(area, 2500)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// subdivideWithin fails the test when Subdivide does not return in time.
func subdivideWithin(t *testing.T, area domain.Rectangle, edge int) []domain.Rectangle {
	t.Helper()
	type result struct {
		tiles []domain.Rectangle
		err   error
	}
	done := make(chan result, 1)
	go func() {
		tiles, err := Subdivide(area, edge)
		done <- result{tiles, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		return r.tiles
	case <-time.After(5 * time.Second):
		t.Fatalf("Subdivide(%s, %d) did not return", area, edge)
		return nil
	}
}

func TestSubdivide_Coverage(t *testing.T) {
	tests := []struct {
		name    string
		area    domain.Rectangle
		edges   []int
		clamped bool // tiles at the coordinate limits may be short
	}{
		{
			name: "hamburg",
			area: domain.Rectangle{
				SouthWest: domain.Position{Latitude: 53.4, Longitude: 9.7},
				NorthEast: domain.Position{Latitude: 53.7, Longitude: 10.3},
			},
			edges: []int{1000, 3333, 10000},
		},
		{
			name: "nairobi",
			area: domain.Rectangle{
				SouthWest: domain.Position{Latitude: -1.2, Longitude: 36.6},
				NorthEast: domain.Position{Latitude: -1.1, Longitude: 36.95},
			},
			edges: []int{1000, 3333, 10000},
		},
		{
			name: "tromso",
			area: domain.Rectangle{
				SouthWest: domain.Position{Latitude: 69.5, Longitude: 18.8},
				NorthEast: domain.Position{Latitude: 69.8, Longitude: 19.2},
			},
			edges: []int{1000, 3333, 10000},
		},
		{
			name: "touches antimeridian",
			area: domain.Rectangle{
				SouthWest: domain.Position{Latitude: 0, Longitude: 179.995},
				NorthEast: domain.Position{Latitude: 0.001, Longitude: 180},
			},
			edges:   []int{1000, 5000},
			clamped: true,
		},
		{
			name: "touches north pole",
			area: domain.Rectangle{
				SouthWest: domain.Position{Latitude: 89.99, Longitude: 0},
				NorthEast: domain.Position{Latitude: 90, Longitude: 0.001},
			},
			edges:   []int{500, 2000},
			clamped: true,
		},
	}

	for _, tt := range tests {
		for _, edge := range tt.edges {
			t.Run(fmt.Sprintf("%s/%d", tt.name, edge), func(t *testing.T) {
				tiles := subdivideWithin(t, tt.area, edge)
				require.NotEmpty(t, tiles)
				assertCovers(t, tt.area, tiles)

				for _, tile := range tiles {
					require.NoError(t, tile.Validate())
					if tt.clamped {
						continue
					}
					// The southern edge runs along the start latitude of the
					// band and the western edge along a meridian; neither is
					// shorter than the requested edge.
					bottom := Distance(tile.SouthWest, domain.Position{
						Latitude:  tile.SouthWest.Latitude,
						Longitude: tile.NorthEast.Longitude,
					})
					left := Distance(tile.SouthWest, domain.Position{
						Latitude:  tile.NorthEast.Latitude,
						Longitude: tile.SouthWest.Longitude,
					})
					assert.GreaterOrEqual(t, bottom, float64(edge)*0.999)
					assert.GreaterOrEqual(t, left, float64(edge)*0.999)
				}
			})
		}
	}
}

func TestSubdivide_CoversNorthEastBorder(t *testing.T) {
	area := squareFrom(domain.Position{Latitude: 53.55, Longitude: 9.99}, 2000)

	tiles, err := Subdivide(area, 1000)
	require.NoError(t, err)

	last := tiles[len(tiles)-1]
	assert.True(t, last.Contains(area.NorthEast), "north-east corner %s outside %s", area.NorthEast, last)
}

// assertCovers samples the area on a grid, borders included, and checks each
// sample lies in some tile.
func assertCovers(t *testing.T, area domain.Rectangle, tiles []domain.Rectangle) {
	t.Helper()
	const steps = 25
	dLat := (area.NorthEast.Latitude - area.SouthWest.Latitude) / steps
	dLon := (area.NorthEast.Longitude - area.SouthWest.Longitude) / steps
	for i := 0; i <= steps; i++ {
		for j := 0; j <= steps; j++ {
			p := domain.Position{
				Latitude:  area.SouthWest.Latitude + float64(i)*dLat,
				Longitude: area.SouthWest.Longitude + float64(j)*dLon,
			}
			if i == steps {
				p.Latitude = area.NorthEast.Latitude
			}
			if j == steps {
				p.Longitude = area.NorthEast.Longitude
			}
			covered := false
			for _, tile := range tiles {
				if tile.Contains(p) {
					covered = true
					break
				}
			}
			assert.True(t, covered, "point %s not covered", p)
		}
	}
}

func TestSubdivide_DegenerateArea(t *testing.T) {
	p := domain.Position{Latitude: 50, Longitude: 8}

	tests := []struct {
		name string
		area domain.Rectangle
	}{
		{"point", domain.Rectangle{SouthWest: p, NorthEast: p}},
		{"zero height", domain.Rectangle{SouthWest: p, NorthEast: domain.Position{Latitude: 50, Longitude: 8.1}}},
		{"zero width", domain.Rectangle{SouthWest: p, NorthEast: domain.Position{Latitude: 50.1, Longitude: 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiles, err := Subdivide(tt.area, 1000)
			require.NoError(t, err)
			require.Len(t, tiles, 1)
			assert.Equal(t, tt.area, tiles[0])
		})
	}
}

func TestSubdivide_InvalidInput(t *testing.T) {
	area := domain.Rectangle{
		SouthWest: domain.Position{Latitude: 50, Longitude: 8},
		NorthEast: domain.Position{Latitude: 51, Longitude: 9},
	}

	for _, edge := range []int{0, -5} {
		_, err := Subdivide(area, edge)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	}

	swapped := domain.Rectangle{SouthWest: area.NorthEast, NorthEast: area.SouthWest}
	_, err := Subdivide(swapped, 1000)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSize(t *testing.T) {
	area := squareFrom(domain.Position{Latitude: 0, Longitude: 0}, 5000)
	w, h := Size(area)
	assert.InDelta(t, 5000, w, 5)
	assert.InDelta(t, 5000, h, 5)
}
