package netatmo

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

// Module is one module of a station and the types it reports. The list of
// modules is stored as JSON in Sensor.SensorType.
type Module struct {
	ModuleID string   `json:"module_id"`
	Types    []string `json:"types"`
}

// Implicit type lists for modules that publish values without a "type" list.
var (
	rainTypes = []string{"rain_60min", "rain_24h", "rain_live"}
	windTypes = []string{"wind_strength", "wind_angle", "gust_strength", "gust_angle"}
)

// EncodeModules serializes modules into a sensor type descriptor.
func EncodeModules(modules []Module) (string, error) {
	data, err := json.Marshal(modules)
	if err != nil {
		return "", fmt.Errorf("encode modules: %w", err)
	}
	return string(data), nil
}

// ParseModules decodes a sensor type descriptor. An empty descriptor or one
// without modules yields domain.ErrNoTypeDescriptor.
func ParseModules(sensorType string) ([]Module, error) {
	if strings.TrimSpace(sensorType) == "" {
		return nil, domain.ErrNoTypeDescriptor
	}
	var modules []Module
	if err := json.Unmarshal([]byte(sensorType), &modules); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoTypeDescriptor, err)
	}
	if len(modules) == 0 {
		return nil, domain.ErrNoTypeDescriptor
	}
	return modules, nil
}

// modulesFromMeasures extracts the module list of a discovery item. Modules
// are ordered by id.
func modulesFromMeasures(measures map[string]json.RawMessage) ([]Module, error) {
	ids := make([]string, 0, len(measures))
	for id := range measures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	modules := make([]Module, 0, len(ids))
	for _, id := range ids {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(measures[id], &fields); err != nil {
			return nil, fmt.Errorf("module %s: %w", id, err)
		}

		types := []string{}
		switch {
		case fields["type"] != nil:
			if err := json.Unmarshal(fields["type"], &types); err != nil {
				return nil, fmt.Errorf("module %s types: %w", id, err)
			}
		case fields["rain_60min"] != nil:
			types = append(types, rainTypes...)
		case fields["wind_strength"] != nil:
			types = append(types, windTypes...)
		}
		modules = append(modules, Module{ModuleID: id, Types: types})
	}
	return modules, nil
}

// seriesField converts a discovery type name to the name getmeasure expects.
func seriesField(name string) string {
	switch name = strings.ToLower(name); name {
	case "wind_strength":
		return "windstrength"
	case "wind_angle":
		return "windangle"
	case "gust_strength":
		return "guststrength"
	case "gust_angle":
		return "gustangle"
	default:
		return name
	}
}
