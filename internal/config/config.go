package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// NWS API client configuration.
	NWSBaseURL   string
	NWSUserAgent string
	NWSTimeout   time.Duration
	FetchLimit   int

	// Circuit breaker around the NWS client.
	BreakerEnabled bool

	// SQLite storage configuration.
	SQLitePath         string
	SQLiteDSN          string
	SQLiteMaxOpenConns int

	// Scheduled ingestion.
	Stations       []string
	IngestInterval time.Duration
}

// defaultStations is the fallback station list used when STATIONS is unset,
// mirroring the seed set the pipeline was originally exercised against.
var defaultStations = []string{
	"000PG", // Southside Road
	"000SE", // SCE South Hills Park
	"011HI", // Lyon Honolulu
	"024CE", // 39 Chocolate Springs
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	nwsTimeout, err := parseDuration("NWS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	ingestInterval, err := parseDuration("INGEST_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	fetchLimit, err := parseFetchLimit()
	if err != nil {
		return nil, err
	}

	maxOpenConns, err := parsePositiveInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NWSBaseURL:   envOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		NWSUserAgent: envOrDefault("NWS_USER_AGENT", "nws-observation-ingest (github.com/couchcryptid/nws-observation-ingest)"),
		NWSTimeout:   nwsTimeout,
		FetchLimit:   fetchLimit,

		BreakerEnabled: envOrDefault("BREAKER_ENABLED", "true") == "true",

		SQLitePath:         envOrDefault("SQLITE_PATH", "data/observations.db"),
		SQLiteDSN:          os.Getenv("SQLITE_DSN"),
		SQLiteMaxOpenConns: maxOpenConns,

		Stations:       parseStations(os.Getenv("STATIONS")),
		IngestInterval: ingestInterval,
	}

	if cfg.NWSBaseURL == "" {
		return nil, errors.New("NWS_BASE_URL is required")
	}
	if cfg.NWSUserAgent == "" {
		return nil, errors.New("NWS_USER_AGENT is required")
	}
	if len(cfg.Stations) == 0 {
		cfg.Stations = defaultStations
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseFetchLimit() (int, error) {
	s := envOrDefault("FETCH_LIMIT", "500")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 2500 {
		return 0, fmt.Errorf("invalid FETCH_LIMIT %q (must be 1-2500)", s)
	}
	return n, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func parseStations(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}
