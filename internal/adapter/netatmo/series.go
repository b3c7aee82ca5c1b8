package netatmo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/typemap"
)

// Streams resolves the series to fetch for sensor: for every module, the
// reported fields filtered and family-expanded by fields, mapped at scale.
// Fields without a canonical type are skipped.
func (c *Client) Streams(sensor domain.Sensor, fields []string, scale domain.Scale) ([]typemap.Stream, error) {
	if !scale.Valid() {
		return nil, fmt.Errorf("%w: scale %q", domain.ErrInvalidInput, scale)
	}
	modules, err := ParseModules(sensor.SensorType)
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", sensor.OriginalID, err)
	}

	var streams []typemap.Stream
	for _, m := range modules {
		reported := make([]string, len(m.Types))
		for i, t := range m.Types {
			reported[i] = seriesField(t)
		}
		for _, field := range typemap.ExpandFields(reported, fields) {
			mapping, ok := typemap.Lookup(domain.SourceNetatmo, scale, field)
			if !ok {
				c.metrics.UnmappedFields.WithLabelValues(string(domain.SourceNetatmo)).Inc()
				continue
			}
			streams = append(streams, typemap.Stream{ModuleID: m.ModuleID, Field: field, Mapping: mapping})
		}
	}
	return streams, nil
}

// FetchSeries pages through getmeasure for one stream, returning only points
// strictly after since (all points when since is nil), ordered by time.
//
// The API has no has-more flag. A page holding pageCap rows is taken to mean
// more data follows and the next request starts one second after the newest
// row seen; a shorter or empty page ends the loop. A final page of exactly
// pageCap rows therefore costs one extra, empty request. The loop also stops
// when the cursor would not advance, when ctx is done between pages, and on a
// request failure, in which case the points gathered so far are returned.
// Null values are the source's missing-value marker and are dropped.
func (c *Client) FetchSeries(ctx context.Context, sensor domain.Sensor, stream typemap.Stream, scale domain.Scale, since *time.Time) ([]domain.SeriesPoint, error) {
	if !scale.Valid() {
		return nil, fmt.Errorf("%w: scale %q", domain.ErrInvalidInput, scale)
	}
	if sensor.SensorType == "" || stream.ModuleID == "" {
		return nil, fmt.Errorf("sensor %s: %w", sensor.OriginalID, domain.ErrNoTypeDescriptor)
	}

	log := c.logger.With("station_id", sensor.OriginalID, "module_id", stream.ModuleID, "field", stream.Field)

	var begin *int64
	if since != nil {
		b := since.Unix() + 1
		begin = &b
	}

	var (
		points  []domain.SeriesPoint
		seen    = make(map[int64]struct{})
		missing int
		pages   int
	)
	for ctx.Err() == nil {
		rows, err := c.fetchPage(ctx, sensor.OriginalID, stream, scale, begin)
		if err != nil {
			log.Warn("series page failed, keeping partial result", "page", pages+1, "points", len(points), "error", err)
			break
		}
		pages++
		if len(rows) == 0 {
			break
		}

		maxTS := rows[len(rows)-1].ts
		for _, row := range rows {
			if since != nil && row.ts <= since.Unix() {
				continue
			}
			if _, dup := seen[row.ts]; dup {
				continue
			}
			seen[row.ts] = struct{}{}
			if row.value == nil {
				missing++
				continue
			}
			points = append(points, domain.SeriesPoint{Timestamp: time.Unix(row.ts, 0).UTC(), Value: *row.value})
		}

		if len(rows) < c.pageCap {
			break
		}
		next := maxTS + 1
		if begin != nil && next <= *begin {
			log.Warn("pagination cursor did not advance, stopping", "cursor", next)
			break
		}
		begin = &next
	}

	source := string(domain.SourceNetatmo)
	c.metrics.PagesFetched.WithLabelValues(source).Add(float64(pages))
	c.metrics.PointsFetched.WithLabelValues(source).Add(float64(len(points)))
	c.metrics.SentinelDropped.WithLabelValues(source).Add(float64(missing))
	log.Debug("series fetched", "pages", pages, "points", len(points), "missing", missing)

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

type seriesRow struct {
	ts    int64
	value *float64
}

// fetchPage issues one getmeasure request and returns its rows ordered by time.
func (c *Client) fetchPage(ctx context.Context, deviceID string, stream typemap.Stream, scale domain.Scale, begin *int64) ([]seriesRow, error) {
	body := getMeasureRequest{
		DeviceID: deviceID,
		ModuleID: stream.ModuleID,
		Scale:    string(scale),
		Type:     []string{stream.Field},
		Optimize: false,
	}
	if begin != nil {
		body.DateBegin = strconv.FormatInt(*begin, 10)
	}

	resp, err := c.do(ctx, "getmeasure", func(req *resty.Request, token string) (*resty.Response, error) {
		return req.SetAuthToken(token).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post("/api/getmeasure")
	})
	if err != nil {
		return nil, err
	}
	return parseMeasureBody(resp.Body())
}

// parseMeasureBody decodes {"body": {"<epoch>": [value, ...]}}. The API
// answers an empty range with "body": [].
func parseMeasureBody(data []byte) ([]seriesRow, error) {
	var payload getMeasureResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode getmeasure response: %w", err)
	}
	raw := bytes.TrimSpace(payload.Body)
	if len(raw) == 0 || raw[0] == '[' || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var byTime map[string][]*float64
	if err := json.Unmarshal(raw, &byTime); err != nil {
		return nil, fmt.Errorf("decode getmeasure body: %w", err)
	}

	rows := make([]seriesRow, 0, len(byTime))
	for key, values := range byTime {
		ts, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		row := seriesRow{ts: ts}
		if len(values) > 0 {
			row.value = values[0]
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ts < rows[j].ts })
	return rows, nil
}

type getMeasureRequest struct {
	DeviceID  string   `json:"device_id"`
	ModuleID  string   `json:"module_id"`
	Scale     string   `json:"scale"`
	Type      []string `json:"type"`
	Optimize  bool     `json:"optimize"`
	DateBegin string   `json:"date_begin,omitempty"`
	DateEnd   string   `json:"date_end,omitempty"`
}

type getMeasureResponse struct {
	Status string          `json:"status"`
	Body   json.RawMessage `json:"body"`
}
