package app

import (
	"context"
	"fmt"

	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/internal/api/store/drivers/mongodb"
	"github.com/coinpulse/coinpulse/internal/api/store/drivers/redis"
	"github.com/coinpulse/coinpulse/internal/api/store/drivers/sqlite"
)

// OpenStore opens the identity store for STORE_DRIVER. Migrations are not
// applied.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "mongo":
		st, err := mongodb.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		return st, nil
	case "sqlite", "":
		st, err := sqlite.NewStore(sqlite.DSN(cfg.DatabaseFile))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenRedis connects to REDIS_ADDR.
func OpenRedis(ctx context.Context, cfg Config) (*redis.Ephemeral, error) {
	r, err := redis.New(ctx, redis.Config{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return r, nil
}

// Migrate applies identity store migrations and closes the store.
func Migrate(ctx context.Context, cfg Config) error {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
