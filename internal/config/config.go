package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Store configuration.
	StoreBackend string
	DatabaseURL  string
	DBDriver     string

	// Area and discovery.
	Area             Area
	TileEdgeMeters   int
	DiscoveryEnabled bool
	DiscoveryDelay   time.Duration

	// Ingestion.
	IngestFields          []string
	IngestScale           string
	IngestInterval        time.Duration
	IngestWorkers         int
	MaxConcurrentRequests int

	// Netatmo public weather map.
	NetatmoEnabled bool
	NetatmoToken   string
	NetatmoAPIURL  string
	NetatmoAuthURL string
	NetatmoTimeout time.Duration

	// DWD daily climate files.
	DWDEnabled     bool
	DWDDataDir     string
	DWDStationList string
	DWDCacheSize   int

	// Kafka measurement publisher.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// InfluxDB measurement mirror.
	InfluxEnabled bool
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
}

// Area is the configured region as raw corner coordinates.
type Area struct {
	NorthEastLat float64
	NorthEastLon float64
	SouthWestLat float64
	SouthWestLon float64
}

// Rectangle converts the corners into a domain rectangle.
func (a Area) Rectangle() domain.Rectangle {
	return domain.Rectangle{
		NorthEast: domain.Position{Latitude: a.NorthEastLat, Longitude: a.NorthEastLon},
		SouthWest: domain.Position{Latitude: a.SouthWestLat, Longitude: a.SouthWestLon},
	}
}

// Scale returns the parsed INGEST_SCALE. Load has already validated it.
func (c *Config) Scale() domain.Scale {
	s, _ := domain.ParseScale(c.IngestScale)
	return s
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first if present;
// it never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreBackend: strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", StorePostgres)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DBDriver:     sharedcfg.EnvOrDefault("DB_DRIVER", "pgx"),

		IngestFields: splitList(os.Getenv("INGEST_FIELDS")),
		IngestScale:  sharedcfg.EnvOrDefault("INGEST_SCALE", "1day"),

		NetatmoToken:   os.Getenv("NETATMO_TOKEN"),
		NetatmoAPIURL:  sharedcfg.EnvOrDefault("NETATMO_API_URL", "https://app.netatmo.net"),
		NetatmoAuthURL: sharedcfg.EnvOrDefault("NETATMO_AUTH_URL", "https://auth.netatmo.com/weathermap/token"),

		DWDDataDir:     os.Getenv("DWD_DATA_DIR"),
		DWDStationList: os.Getenv("DWD_STATION_LIST"),

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "sensor-measurements"),

		InfluxURL:    sharedcfg.EnvOrDefault("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: sharedcfg.EnvOrDefault("INFLUX_BUCKET", "measurements"),
	}

	if cfg.Area, err = parseArea(); err != nil {
		return nil, err
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"TILE_EDGE_METERS", 1000, &cfg.TileEdgeMeters},
		{"INGEST_WORKERS", 4, &cfg.IngestWorkers},
		{"MAX_CONCURRENT_REQUESTS", 4, &cfg.MaxConcurrentRequests},
		{"DWD_CACHE_SIZE", 64, &cfg.DWDCacheSize},
	}
	for _, v := range ints {
		if *v.dst, err = parsePositiveInt(v.key, v.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key       string
		def       string
		allowZero bool
		dst       *time.Duration
	}{
		{"DISCOVERY_DELAY", "2s", true, &cfg.DiscoveryDelay},
		{"INGEST_INTERVAL", "0s", true, &cfg.IngestInterval},
		{"NETATMO_TIMEOUT", "15s", false, &cfg.NetatmoTimeout},
	}
	for _, v := range durations {
		if *v.dst, err = parseDuration(v.key, v.def, v.allowZero); err != nil {
			return nil, err
		}
	}

	bools := []struct {
		key string
		def bool
		dst *bool
	}{
		{"DISCOVERY_ENABLED", true, &cfg.DiscoveryEnabled},
		{"NETATMO_ENABLED", true, &cfg.NetatmoEnabled},
		{"DWD_ENABLED", false, &cfg.DWDEnabled},
		{"KAFKA_ENABLED", false, &cfg.KafkaEnabled},
		{"INFLUX_ENABLED", false, &cfg.InfluxEnabled},
	}
	for _, v := range bools {
		if *v.dst, err = parseBool(v.key, v.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want postgres or memory", c.StoreBackend)
	}
	if c.DBDriver != "pgx" && c.DBDriver != "postgres" {
		return fmt.Errorf("invalid DB_DRIVER %q: want pgx or postgres", c.DBDriver)
	}
	if err := c.Area.Rectangle().Validate(); err != nil {
		return fmt.Errorf("invalid AREA_*: %w", err)
	}
	if _, err := domain.ParseScale(c.IngestScale); err != nil {
		return fmt.Errorf("invalid INGEST_SCALE: %w", err)
	}
	if !c.NetatmoEnabled && !c.DWDEnabled {
		return errors.New("at least one of NETATMO_ENABLED or DWD_ENABLED must be true")
	}
	if c.DWDEnabled && c.DWDDataDir == "" {
		return errors.New("DWD_ENABLED is true but DWD_DATA_DIR is not set")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if c.InfluxEnabled && (c.InfluxToken == "" || c.InfluxOrg == "") {
		return errors.New("INFLUX_ENABLED is true but INFLUX_TOKEN or INFLUX_ORG is not set")
	}
	return nil
}

// parseArea reads the four corner variables. The defaults cover Hamburg.
func parseArea() (Area, error) {
	corners := []struct {
		key string
		def string
	}{
		{"AREA_NE_LAT", "53.7394"},
		{"AREA_NE_LON", "10.3253"},
		{"AREA_SW_LAT", "53.3951"},
		{"AREA_SW_LON", "9.7320"},
	}
	var vals [4]float64
	for i, c := range corners {
		s := sharedcfg.EnvOrDefault(c.key, c.def)
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Area{}, fmt.Errorf("invalid %s %q: %w", c.key, s, err)
		}
		vals[i] = v
	}
	return Area{
		NorthEastLat: vals[0],
		NorthEastLon: vals[1],
		SouthWestLat: vals[2],
		SouthWestLon: vals[3],
	}, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, s)
	}
	return n, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
