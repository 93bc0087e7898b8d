// Package config loads gateway and worker settings from an optional .env.<APP_ENV>
// file and the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/rotabus/rotabus/internal/database"
	"github.com/rotabus/rotabus/internal/store"
)

// Store drivers.
const (
	StoreMemory   = store.DriverMemory
	StoreRedis    = store.DriverRedis
	StorePostgres = store.DriverPostgres
)

// Config holds every setting shared by cmd/api and cmd/worker.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	Port     string `mapstructure:"APP_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	BackendBaseURL      string        `mapstructure:"BACKEND_BASE_URL"`
	BackendTimeout      time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	BackendMaxRetries   uint64        `mapstructure:"BACKEND_MAX_RETRIES"`
	BackendServiceToken string        `mapstructure:"BACKEND_SERVICE_TOKEN"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	StorePrefix string `mapstructure:"STORE_PREFIX"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            int           `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSSLMode         string        `mapstructure:"DB_SSL_MODE"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`

	OTelEnabled  bool    `mapstructure:"OTEL_ENABLED"`
	OTLPEndpoint string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSampling float64 `mapstructure:"OTEL_TRACES_SAMPLER_ARG"`

	PositionsPollInterval time.Duration `mapstructure:"POSITIONS_POLL_INTERVAL"`
	PositionsMaxAge       time.Duration `mapstructure:"POSITIONS_MAX_AGE"`

	PubSubProjectID    string `mapstructure:"PUBSUB_PROJECT_ID"`
	PubSubRefreshTopic string `mapstructure:"PUBSUB_REFRESH_TOPIC"`
	PubSubRefreshSub   string `mapstructure:"PUBSUB_REFRESH_SUBSCRIPTION"`

	RouteCacheTTL time.Duration `mapstructure:"ROUTE_CACHE_TTL"`
	RequireTLS    bool          `mapstructure:"REQUIRE_TLS"`

	WorkerHealthPort string        `mapstructure:"WORKER_HEALTH_PORT"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"APP_ENV":   "development",
	"APP_PORT":  "8080",
	"LOG_LEVEL": "info",

	"BACKEND_BASE_URL":      "http://localhost:3000",
	"BACKEND_TIMEOUT":       "10s",
	"BACKEND_MAX_RETRIES":   3,
	"BACKEND_SERVICE_TOKEN": "",

	"STORE_DRIVER": StoreMemory,
	"STORE_PREFIX": "rotabus:",
	"REDIS_URL":    "redis://localhost:6379/0",

	"DB_HOST":              "localhost",
	"DB_PORT":              5432,
	"DB_USER":              "rotabus",
	"DB_PASSWORD":          "localdev",
	"DB_NAME":              "rotabus",
	"DB_SSL_MODE":          "disable",
	"DB_MAX_OPEN_CONNS":    10,
	"DB_MAX_IDLE_CONNS":    2,
	"DB_CONN_MAX_LIFETIME": "5m",

	"OTEL_ENABLED":                false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"OTEL_TRACES_SAMPLER_ARG":     1.0,

	"POSITIONS_POLL_INTERVAL": "30s",
	"POSITIONS_MAX_AGE":       "90s",

	"PUBSUB_PROJECT_ID":           "",
	"PUBSUB_REFRESH_TOPIC":        "",
	"PUBSUB_REFRESH_SUBSCRIPTION": "",

	"ROUTE_CACHE_TTL": "5m",
	"REQUIRE_TLS":     false,

	"WORKER_HEALTH_PORT": "8081",
	"SHUTDOWN_TIMEOUT":   "30s",
}

// Load reads .env.<APP_ENV> from dir (if present) and overlays environment variables.
// An empty dir means the working directory.
func Load(dir string) (Config, error) {
	var c Config

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if dir == "" {
		dir = "."
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(fmt.Sprintf(".env.%s", env))
	v.SetConfigType("env")
	v.AddConfigPath(dir)

	// Environment variables take precedence over the file.
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.BackendBaseURL = strings.TrimRight(c.BackendBaseURL, "/")

	return c, c.Validate()
}

// Validate rejects settings the services cannot start with.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL %q is not an absolute URL", c.BackendBaseURL)
	}

	switch c.StoreDriver {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("STORE_DRIVER %q is not one of memory, redis, postgres", c.StoreDriver)
	}

	if c.PositionsPollInterval <= 0 {
		return errors.New("POSITIONS_POLL_INTERVAL must be positive")
	}
	if c.PositionsMaxAge < c.PositionsPollInterval {
		return errors.New("POSITIONS_MAX_AGE must not be shorter than POSITIONS_POLL_INTERVAL")
	}
	if c.PubSubRefreshTopic != "" && c.PubSubProjectID == "" {
		return errors.New("PUBSUB_REFRESH_TOPIC requires PUBSUB_PROJECT_ID")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Database returns the connection settings for the Postgres store.
func (c Config) Database() database.Config {
	return database.Config{
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPassword,
		Database:        c.DBName,
		SSLMode:         c.DBSSLMode,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	}
}

// Store returns the settings store.Open needs for the configured driver.
func (c Config) Store(logger zerolog.Logger) store.OpenConfig {
	return store.OpenConfig{
		Driver:   c.StoreDriver,
		Prefix:   c.StorePrefix,
		RedisURL: c.RedisURL,
		Database: c.Database(),
		Logger:   logger,
	}
}

// Level parses LOG_LEVEL, falling back to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

// PubSubEnabled reports whether on-demand refreshes go through Pub/Sub.
func (c Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubRefreshTopic != ""
}
