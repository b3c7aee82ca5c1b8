package dwd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

// Station is one row of a DWD station description file
// (KL_Tageswerte_Beschreibung_Stationen.txt).
type Station struct {
	ID       string
	From, To string // yyyymmdd
	Height   float64
	Position domain.Position
	Name     string
	State    string
}

// parseStations reads a whitespace-aligned, ISO-8859-1 encoded station
// description file and returns names and states as UTF-8. The header and separator lines are skipped, as are rows that do not parse.
// Station names may contain spaces; the state is the last column, or the
// one before it when the file carries the trailing "Abgabe" column.
func parseStations(r io.Reader) ([]Station, int, error) {
	var (
		stations []Station
		skipped  int
	)
	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "Stations_id") || strings.HasPrefix(line, "---") {
			continue
		}
		st, err := parseStationLine(line)
		if err != nil {
			skipped++
			continue
		}
		stations = append(stations, st)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read station list: %w", err)
	}
	return stations, skipped, nil
}

func parseStationLine(line string) (Station, error) {
	f := strings.Fields(line)
	if len(f) < 8 {
		return Station{}, fmt.Errorf("station line has %d fields", len(f))
	}

	height, err := strconv.ParseFloat(f[3], 64)
	if err != nil {
		return Station{}, fmt.Errorf("station height: %w", err)
	}
	lat, err := strconv.ParseFloat(f[4], 64)
	if err != nil {
		return Station{}, fmt.Errorf("station latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(f[5], 64)
	if err != nil {
		return Station{}, fmt.Errorf("station longitude: %w", err)
	}
	pos := domain.Position{Latitude: lat, Longitude: lon}
	if err := pos.Validate(); err != nil {
		return Station{}, err
	}

	rest := f[6:]
	if len(rest) >= 3 && strings.EqualFold(rest[len(rest)-1], "Frei") {
		rest = rest[:len(rest)-1]
	}

	return Station{
		ID:       f[0],
		From:     f[1],
		To:       f[2],
		Height:   height,
		Position: pos,
		Name:     strings.Join(rest[:len(rest)-1], " "),
		State:    rest[len(rest)-1],
	}, nil
}

// normalizeStationID strips leading zeros so "00044" and "44" match.
func normalizeStationID(id string) string {
	id = strings.TrimLeft(strings.TrimSpace(id), "0")
	if id == "" {
		return "0"
	}
	return id
}
