// Package dwd reads daily climate observations of the Deutscher Wetterdienst
// from the station description file and the per-station product files of
// the KL daily dataset.
package dwd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/observability"
	"github.com/couchcryptid/geosensor-ingest/internal/typemap"
)

// SensorType is the descriptor stored on every DWD sensor.
const SensorType = "klima_tag"

const (
	productPattern  = "produkt_klima_tag_*.txt"
	stationsPattern = "*Beschreibung_Stationen*.txt"
)

// Config holds the reader settings.
type Config struct {
	DataDir     string
	StationList string // defaults to the first description file in DataDir
	CacheSize   int
}

// Client implements the remote source contract for DWD daily files.
type Client struct {
	dir         string
	stationList string
	cache       *lru.Cache[string, *table]
	metrics     *observability.Metrics
	logger      *slog.Logger

	mu       sync.Mutex
	stations []Station
}

// NewClient creates a DWD reader over cfg.DataDir.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *table](cfg.CacheSize)
	return &Client{
		dir:         cfg.DataDir,
		stationList: cfg.StationList,
		cache:       cache,
		metrics:     metrics,
		logger:      logger.With("source", string(domain.SourceDWD)),
	}
}

// Name identifies the source.
func (c *Client) Name() domain.Source {
	return domain.SourceDWD
}

// DiscoverSensors returns every listed station inside tile. A missing or
// unreadable station list is logged and yields an empty result.
func (c *Client) DiscoverSensors(ctx context.Context, tile domain.Rectangle) []domain.Sensor {
	if ctx.Err() != nil {
		return nil
	}
	stations, err := c.loadStations()
	if err != nil {
		c.logger.Warn("station list unavailable", "tile", tile.String(), "error", err)
		return nil
	}

	var sensors []domain.Sensor
	for _, st := range stations {
		if !tile.Contains(st.Position) {
			continue
		}
		sensors = append(sensors, domain.Sensor{
			OriginalID:            st.ID,
			Source:                domain.SourceDWD,
			Position:              st.Position,
			AdditionalInformation: strings.TrimSpace(st.Name + ", " + st.State),
			SensorType:            SensorType,
		})
	}
	return sensors
}

// ReportedTypes returns the canonical types of the whitelisted columns found
// in the station's product file. Stations without a file report nothing.
func (c *Client) ReportedTypes(sensor domain.Sensor) []domain.MeasurementType {
	t, err := c.table(sensor.OriginalID)
	if err != nil {
		c.logger.Debug("no climate table for station", "station_id", sensor.OriginalID, "error", err)
		return nil
	}
	var out []domain.MeasurementType
	for _, col := range t.order {
		if typ := typemap.MapField(domain.SourceDWD, domain.Scale1Day, col); typ.Valid() {
			out = append(out, typ)
		}
	}
	return out
}

// Streams returns one stream per whitelisted column present in the
// station's file, filtered by fields (column names, case-insensitive; empty
// selects all). Only the 1day scale exists.
func (c *Client) Streams(sensor domain.Sensor, fields []string, scale domain.Scale) ([]typemap.Stream, error) {
	if scale != domain.Scale1Day {
		return nil, fmt.Errorf("%w: DWD daily files only support scale %s, got %q", domain.ErrInvalidInput, domain.Scale1Day, scale)
	}
	t, err := c.table(sensor.OriginalID)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w: %v", sensor.OriginalID, domain.ErrNoTypeDescriptor, err)
	}

	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[strings.ToUpper(strings.TrimSpace(f))] = true
	}

	var streams []typemap.Stream
	for _, col := range t.order {
		if len(want) > 0 && !want[col] {
			continue
		}
		mapping, ok := typemap.Lookup(domain.SourceDWD, scale, col)
		if !ok {
			c.metrics.UnmappedFields.WithLabelValues(string(domain.SourceDWD)).Inc()
			continue
		}
		streams = append(streams, typemap.Stream{Field: col, Mapping: mapping})
	}
	return streams, nil
}

// FetchSeries returns the values of one column strictly after since,
// ordered by day. Sentinel and unparsable cells are dropped.
func (c *Client) FetchSeries(ctx context.Context, sensor domain.Sensor, stream typemap.Stream, scale domain.Scale, since *time.Time) ([]domain.SeriesPoint, error) {
	if scale != domain.Scale1Day {
		return nil, fmt.Errorf("%w: DWD daily files only support scale %s, got %q", domain.ErrInvalidInput, domain.Scale1Day, scale)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := c.table(sensor.OriginalID)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w: %v", sensor.OriginalID, domain.ErrNoTypeDescriptor, err)
	}

	col := strings.ToUpper(stream.Field)
	values, ok := t.columns[col]
	if !ok {
		return nil, nil
	}

	var (
		points  []domain.SeriesPoint
		missing int
		broken  int
	)
	for i, v := range values {
		ts := t.times[i]
		if since != nil && !ts.After(*since) {
			continue
		}
		switch {
		case math.IsNaN(v):
			broken++
		case v == sentinel:
			missing++
		default:
			points = append(points, domain.SeriesPoint{Timestamp: ts, Value: v})
		}
	}

	source := string(domain.SourceDWD)
	c.metrics.PointsFetched.WithLabelValues(source).Add(float64(len(points)))
	c.metrics.SentinelDropped.WithLabelValues(source).Add(float64(missing))
	if broken > 0 {
		c.logger.Debug("skipped unparsable cells", "station_id", sensor.OriginalID, "column", col, "count", broken)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

// loadStations parses the station list once; failures are retried on the
// next call.
func (c *Client) loadStations() ([]Station, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stations != nil {
		return c.stations, nil
	}

	path := c.stationList
	if path == "" {
		matches, err := filepath.Glob(filepath.Join(c.dir, stationsPattern))
		if err != nil {
			return nil, fmt.Errorf("glob station list: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no station list in %s", c.dir)
		}
		sort.Strings(matches)
		path = matches[0]
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station list: %w", err)
	}
	defer f.Close()

	stations, skipped, err := parseStations(f)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.Warn("skipped malformed station rows", "path", path, "count", skipped)
	}
	c.logger.Info("station list loaded", "path", path, "stations", len(stations))
	c.stations = stations
	return stations, nil
}

// productFile finds the product file of a station. The station id is the
// sixth underscore-separated part of the file name; when several files
// match, the one sorting last (latest period) wins.
func (c *Client) productFile(stationID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, productPattern))
	if err != nil {
		return "", fmt.Errorf("glob product files: %w", err)
	}
	want := normalizeStationID(stationID)
	var found []string
	for _, m := range matches {
		if id, ok := stationIDFromFile(filepath.Base(m)); ok && normalizeStationID(id) == want {
			found = append(found, m)
		}
	}
	if len(found) == 0 {
		return "", fmt.Errorf("no product file for station %s", stationID)
	}
	sort.Strings(found)
	return found[len(found)-1], nil
}

func stationIDFromFile(name string) (string, bool) {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(name, "_")
	if len(parts) < 6 || parts[5] == "" {
		return "", false
	}
	return parts[5], true
}

// table returns the parsed product file of a station. Entries are keyed by
// path and modification time so a replaced file is parsed again.
func (c *Client) table(stationID string) (*table, error) {
	path, err := c.productFile(stationID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat product file: %w", err)
	}
	key := fmt.Sprintf("%s|%d", path, info.ModTime().UnixNano())
	if t, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return t, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open product file: %w", err)
	}
	defer f.Close()

	t, err := parseTable(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	c.cache.Add(key, t)
	return t, nil
}
