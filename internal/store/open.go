package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/database"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// OpenConfig selects and configures a store driver.
type OpenConfig struct {
	Driver   string
	Prefix   string
	RedisURL string
	Database database.Config
	Logger   zerolog.Logger
}

// Handle is an opened store plus what its driver needs at shutdown.
type Handle struct {
	Store Store

	// Postgres is set for the postgres driver; it needs PurgeExpired run periodically.
	Postgres *PostgresStore

	close func()
}

// Close releases the driver's connections.
func (h *Handle) Close() {
	if h.close != nil {
		h.close()
	}
}

// Open connects the configured driver. Redis and Postgres are pinged before Open
// returns; the Postgres schema is created if missing.
func Open(ctx context.Context, cfg OpenConfig) (*Handle, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		cfg.Logger.Warn().Msg("using in-memory store, state is not shared between instances")
		return &Handle{Store: NewMemoryStore()}, nil

	case DriverRedis:
		client, err := ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		cfg.Logger.Info().Str("prefix", cfg.Prefix).Msg("redis store connected")
		return &Handle{
			Store: NewRedisStore(client, cfg.Prefix),
			close: func() { _ = client.Close() },
		}, nil

	case DriverPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		pg := NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		cfg.Logger.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("postgres store connected")
		return &Handle{Store: pg, Postgres: pg, close: pool.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
