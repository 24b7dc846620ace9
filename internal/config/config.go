package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path of the directory served at /.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir          string
	CORSAllowedOrigins []string

	DBDriver          string
	DBDSN             string
	SQLitePath        string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBLogSQL          bool

	// EstimateLookback is the number of most recent observation rows searched
	// per estimate.
	EstimateLookback int

	AEMETURL            string
	AEMETAPIKey         string
	AEMETHTTPTimeout    time.Duration
	AEMETMaxRetries     int
	AEMETBackoffInitial time.Duration
	AEMETBackoffMax     time.Duration

	IngestSchedule string
	IngestOnStart  bool
	IngestTimeout  time.Duration

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

const defaultAEMETURL = "https://opendata.aemet.es/opendata/api/observacion/convencional/todas"

func LoadFromEnv() (Config, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir := envOr("STATIC_DIR", "static")
	staticDir, err = filepath.Abs(staticDir)
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", staticDir, err)
	}

	cfg := Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		HTTPAddr:           envOr("HTTP_ADDR", ":8088"),
		StaticDir:          staticDir,
		CORSAllowedOrigins: splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
		DBDriver:           envOr("DB_DRIVER", "sqlite3"),
		DBDSN:              strings.TrimSpace(os.Getenv("DB_DSN")),
		SQLitePath:         envOr("SQLITE_PATH", "data/wheatr.db"),
		AEMETURL:           envOr("AEMET_URL", defaultAEMETURL),
		AEMETAPIKey:        strings.TrimSpace(os.Getenv("AEMET_API_KEY")),
		IngestSchedule:     envOr("INGEST_SCHEDULE", "@hourly"),
		MQTTBroker:         envOr("MQTT_BROKER", "localhost"),
		MQTTClientID:       envOr("MQTT_CLIENT_ID", "wheatr-server"),
		MQTTTopic:          envOr("MQTT_TOPIC", "wheatr/telemetry"),
	}

	ints := []struct {
		key string
		def string
		dst *int
	}{
		{"DB_MAX_OPEN_CONNS", "1", &cfg.DBMaxOpenConns},
		{"DB_MAX_IDLE_CONNS", "1", &cfg.DBMaxIdleConns},
		{"ESTIMATE_LOOKBACK", "12", &cfg.EstimateLookback},
		{"AEMET_MAX_RETRIES", "3", &cfg.AEMETMaxRetries},
		{"MQTT_PORT", "1883", &cfg.MQTTPort},
	}
	for _, v := range ints {
		s := envOr(v.key, v.def)
		n, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", v.key, s, err)
		}
		*v.dst = n
	}
	if cfg.EstimateLookback < 3 {
		return Config{}, fmt.Errorf("invalid ESTIMATE_LOOKBACK %d (must be >= 3)", cfg.EstimateLookback)
	}
	if cfg.AEMETMaxRetries < 0 {
		return Config{}, fmt.Errorf("invalid AEMET_MAX_RETRIES %d (must be >= 0)", cfg.AEMETMaxRetries)
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", "0s", &cfg.DBConnMaxLifetime},
		{"AEMET_HTTP_TIMEOUT", "30s", &cfg.AEMETHTTPTimeout},
		{"AEMET_BACKOFF_INITIAL", "1s", &cfg.AEMETBackoffInitial},
		{"AEMET_BACKOFF_MAX", "30s", &cfg.AEMETBackoffMax},
		{"INGEST_TIMEOUT", "5m", &cfg.IngestTimeout},
	}
	for _, v := range durations {
		s := envOr(v.key, v.def)
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", v.key, s, err)
		}
		*v.dst = d
	}

	bools := []struct {
		key string
		def string
		dst *bool
	}{
		{"DB_LOG_SQL", "false", &cfg.DBLogSQL},
		{"INGEST_ON_START", "true", &cfg.IngestOnStart},
		{"MQTT_ENABLED", "false", &cfg.MQTTEnabled},
	}
	for _, v := range bools {
		s := envOr(v.key, v.def)
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", v.key, s, err)
		}
		*v.dst = b
	}

	return cfg, nil
}

// IngestEnabled reports whether the AEMET feed is configured.
func (c Config) IngestEnabled() bool {
	return c.AEMETAPIKey != "" && c.AEMETURL != ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
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

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
