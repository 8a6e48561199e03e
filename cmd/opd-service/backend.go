package main

import (
	"context"
	"fmt"

	"opd/opd-service/internal/config"
	"opd/opd-service/internal/kv"
	"opd/opd-service/internal/kv/postgres"
	kvredis "opd/opd-service/internal/kv/redis"
	"opd/opd-service/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type backend struct {
	store       kv.Store
	broadcaster kv.Broadcaster
}

// openBackend connects the configured store. The PostgreSQL backend applies
// its migrations on open so the entries table always exists.
func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("db connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("db ping: %w", err)
		}
		applied, err := postgres.ApplyMigrations(ctx, pool, migrations.Files)
		if err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info().Int("migrations_applied", applied).Msg("connected to database")
		return backend{
			store:       postgres.NewStore(pool),
			broadcaster: postgres.NewBroadcaster(pool, cfg.SyncChannel, logger),
		}, nil
	case config.BackendRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return backend{}, fmt.Errorf("redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return backend{}, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info().Msg("connected to redis")
		return backend{
			store:       kvredis.NewStore(client, cfg.RedisPrefix),
			broadcaster: kvredis.NewBroadcaster(client, cfg.SyncChannel, logger),
		}, nil
	default:
		logger.Warn().Msg("using the in-memory store, data is lost on exit")
		return backend{store: kv.NewMemory(), broadcaster: kv.NewBus()}, nil
	}
}
