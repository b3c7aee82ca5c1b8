// Command validate checks a local DWD daily climate directory before it is
// used as an ingestion source: the station list parses, stations carry valid
// positions, product files resolve to known measurement types, and every
// series is ordered and finite.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data/dwd/klima_tag
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/couchcryptid/geosensor-ingest/internal/adapter/dwd"
	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/observability"
)

// germany covers every station of the DWD network.
var germany = domain.Rectangle{
	NorthEast: domain.Position{Latitude: 55.1, Longitude: 15.1},
	SouthWest: domain.Position{Latitude: 47.2, Longitude: 5.8},
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type counts struct {
	stations     int
	withProducts int
	streams      int
	points       int
}

func main() {
	dataDir := flag.String("data-dir", "", "directory containing the DWD station list and produkt_klima_tag files")
	stationList := flag.String("station-list", "", "explicit station list path (defaults to the one in data-dir)")
	verbose := flag.Bool("v", false, "log reader diagnostics to stderr")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	var out io.Writer = io.Discard
	if *verbose {
		out = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := dwd.NewClient(dwd.Config{DataDir: *dataDir, StationList: *stationList}, observability.NewMetricsForTesting(), logger)
	if code := run(context.Background(), client); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, client *dwd.Client) int {
	fmt.Println("=== DWD Directory Validation ===")
	fmt.Println()

	var c counts
	sensors := client.DiscoverSensors(ctx, germany)
	c.stations = len(sensors)

	phases := []*phase{
		validateStations(sensors),
		validateProducts(client, sensors, &c),
		validateSeries(ctx, client, sensors, &c),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Stations: %d listed, %d with product files, %d streams, %d points\n",
		c.stations, c.withProducts, c.streams, c.points)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateStations(sensors []domain.Sensor) *phase {
	p := &phase{name: "Station list"}
	if len(sensors) == 0 {
		p.errorf("no stations found inside %s", germany.String())
		return p
	}
	seen := make(map[string]bool, len(sensors))
	for _, s := range sensors {
		if err := s.Position.Validate(); err != nil {
			p.errorf("station %s: %v", s.OriginalID, err)
		}
		if seen[s.OriginalID] {
			p.errorf("station %s listed twice", s.OriginalID)
		}
		seen[s.OriginalID] = true
	}
	return p
}

func validateProducts(client *dwd.Client, sensors []domain.Sensor, c *counts) *phase {
	p := &phase{name: "Product files"}
	for _, s := range sensors {
		types := client.ReportedTypes(s)
		if len(types) == 0 {
			continue
		}
		c.withProducts++
		for _, t := range types {
			if !t.Valid() {
				p.errorf("station %s reports an unknown type", s.OriginalID)
			}
		}
	}
	if c.stations > 0 && c.withProducts == 0 {
		p.errorf("none of the %d stations has a product file", c.stations)
	}
	return p
}

func validateSeries(ctx context.Context, client *dwd.Client, sensors []domain.Sensor, c *counts) *phase {
	p := &phase{name: "Series integrity"}
	for _, s := range sensors {
		streams, err := client.Streams(s, nil, domain.Scale1Day)
		if err != nil {
			continue
		}
		for _, st := range streams {
			c.streams++
			points, err := client.FetchSeries(ctx, s, st, domain.Scale1Day, nil)
			if err != nil {
				p.errorf("station %s %s: %v", s.OriginalID, st.Field, err)
				continue
			}
			c.points += len(points)
			for i, pt := range points {
				if math.IsNaN(pt.Value) || math.IsInf(pt.Value, 0) {
					p.errorf("station %s %s: non-finite value at %s", s.OriginalID, st.Field, pt.Timestamp.Format("2006-01-02"))
				}
				if i > 0 && !pt.Timestamp.After(points[i-1].Timestamp) {
					p.errorf("station %s %s: timestamps not increasing at %s", s.OriginalID, st.Field, pt.Timestamp.Format("2006-01-02"))
				}
			}
		}
	}
	return p
}
