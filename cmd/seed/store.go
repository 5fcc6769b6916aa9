package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/taskrun/config"
	"github.com/ErlanBelekov/taskrun/internal/health"
	"github.com/ErlanBelekov/taskrun/internal/store"
	"github.com/ErlanBelekov/taskrun/internal/store/memstore"
	"github.com/ErlanBelekov/taskrun/internal/store/pgstore"
	"github.com/ErlanBelekov/taskrun/internal/store/redisstore"
	"github.com/redis/go-redis/v9"
)

// openStore selects and opens the back end named by cfg.StoreBackend,
// returning a Store, a health.Pinger for the readiness check, and a
// close func covering every exit path.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, health.Pinger, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres pool: %w", err)
		}
		st := pgstore.New(pool, logger)
		st.SetLockExpiration(cfg.LockExpirationDelay())
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
		pinger := health.PingerFunc(func(ctx context.Context) error { return pool.Ping(ctx) })
		return st, pinger, func() { _ = st.Close() }, nil

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.RedisAddr},
			DB:    cfg.RedisDB,
		})
		st := redisstore.New(client, logger)
		st.SetLockExpiration(cfg.LockExpirationDelay())
		pinger := health.PingerFunc(st.Health)
		return st, pinger, func() { _ = st.Close() }, nil

	default:
		st := memstore.New(logger)
		st.SetLockExpiration(cfg.LockExpirationDelay())
		pinger := health.PingerFunc(func(context.Context) error { return nil })
		return st, pinger, func() { _ = st.Close() }, nil
	}
}
