package netatmo

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/typemap"
)

// DiscoverSensors lists the public stations inside tile. Failures are logged
// and yield an empty result so one bad tile never stops discovery.
func (c *Client) DiscoverSensors(ctx context.Context, tile domain.Rectangle) []domain.Sensor {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	resp, err := c.do(ctx, "getpublicmeasures", func(req *resty.Request, token string) (*resty.Response, error) {
		return req.SetQueryParams(map[string]string{
			"limit":        "1",
			"divider":      "7",
			"quality":      "7",
			"zoom":         "12",
			"lat_ne":       formatCoord(tile.NorthEast.Latitude),
			"lon_ne":       formatCoord(tile.NorthEast.Longitude),
			"lat_sw":       formatCoord(tile.SouthWest.Latitude),
			"lon_sw":       formatCoord(tile.SouthWest.Longitude),
			"date_end":     "last",
			"access_token": token,
		}).Get("/api/getpublicmeasures")
	})
	if err != nil {
		c.logger.Warn("discovery request failed", "tile", tile.String(), "error", err)
		return nil
	}

	var payload publicMeasuresResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		c.logger.Warn("malformed discovery response", "tile", tile.String(), "error", err)
		return nil
	}

	sensors := make([]domain.Sensor, 0, len(payload.Body))
	for _, station := range payload.Body {
		sensor, ok := c.sensorFromStation(station)
		if !ok {
			continue
		}
		sensors = append(sensors, sensor)
	}
	return sensors
}

// sensorFromStation maps a discovery item. Items without an id, a usable
// location or a decodable measures map are skipped.
func (c *Client) sensorFromStation(st publicStation) (domain.Sensor, bool) {
	if st.ID == "" || len(st.Place.Location) < 2 || st.Measures == nil {
		c.logger.Debug("skipping incomplete station", "station_id", st.ID)
		return domain.Sensor{}, false
	}

	pos := domain.Position{Latitude: st.Place.Location[1], Longitude: st.Place.Location[0]}
	if err := pos.Validate(); err != nil {
		c.logger.Debug("skipping station with invalid location", "station_id", st.ID, "error", err)
		return domain.Sensor{}, false
	}

	modules, err := modulesFromMeasures(st.Measures)
	if err != nil {
		c.logger.Debug("skipping station with broken measures", "station_id", st.ID, "error", err)
		return domain.Sensor{}, false
	}
	descriptor, err := EncodeModules(modules)
	if err != nil {
		return domain.Sensor{}, false
	}

	return domain.Sensor{
		OriginalID:            st.ID,
		Source:                domain.SourceNetatmo,
		Position:              pos,
		AdditionalInformation: placeInfo(st.Place.City, st.Place.Country),
		SensorType:            descriptor,
	}, true
}

// ReportedTypes returns the canonical instantaneous types of every module,
// without duplicates. Unmapped names are skipped.
func (c *Client) ReportedTypes(sensor domain.Sensor) []domain.MeasurementType {
	modules, err := ParseModules(sensor.SensorType)
	if err != nil {
		return nil
	}
	seen := make(map[domain.MeasurementType]bool)
	var out []domain.MeasurementType
	for _, m := range modules {
		for _, name := range m.Types {
			t := typemap.MapField(domain.SourceNetatmo, domain.ScaleLatest, name)
			if !t.Valid() || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func placeInfo(city, country string) string {
	var parts []string
	for _, p := range []string{city, country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type publicMeasuresResponse struct {
	Status string          `json:"status"`
	Body   []publicStation `json:"body"`
}

type publicStation struct {
	ID    string `json:"_id"`
	Place struct {
		Location []float64 `json:"location"` // [lon, lat]
		Altitude float64   `json:"altitude"`
		City     string    `json:"city"`
		Country  string    `json:"country"`
	} `json:"place"`
	Measures map[string]json.RawMessage `json:"measures"`
}
