package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"live-survey-service/internal/app"
	"live-survey-service/internal/config"
	"live-survey-service/internal/infra/memory"
	"live-survey-service/internal/infra/postgres"
	redisstore "live-survey-service/internal/infra/redis"
)

// openStore builds the configured key-path store. The returned func releases
// its connections.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (app.Store, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store := redisstore.NewStore(client, cfg.Redis.Prefix, log)
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn("failed to close redis feed", zap.Error(err))
			}
			client.Close()
		}, nil
	case config.BackendPostgres:
		if err := postgres.Migrate(ctx, cfg.Postgres.URL, log); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := postgres.NewStore(pool, log)
		return store, func() {
			store.Close()
			pool.Close()
		}, nil
	default:
		return memory.NewStore(log), func() {}, nil
	}
}

// newServices wires the use cases over store with the join-code cache.
func newServices(cfg config.Config, store app.Store, log *zap.Logger) *app.Services {
	ttl := config.TTLDuration(cfg.Codes.TTL, 10*time.Minute)
	return app.New(store, log, app.WithCodeCache(func(loader app.CodeLoader) app.CodeResolver {
		return memory.NewCodeCache(loader, ttl)
	}))
}
