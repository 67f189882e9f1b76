// Package pathlock serializes writers that target the same output file.
package pathlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"html2image/internal/config"
	"html2image/internal/infra/logging"
)

// Locker hands out exclusive locks keyed by destination path.
type Locker interface {
	// Lock blocks until key is free or ctx ends. The returned func releases
	// the lock and may be called more than once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
	Close() error
}

const pingTimeout = 2 * time.Second

// New builds the locker selected by cfg.Locks.Backend. When Redis cannot be
// reached at startup it falls back to the in-process locker.
func New(cfg config.Config) Locker {
	if cfg.Locks.Backend != config.LockBackendRedis {
		return NewMemory()
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.LockDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.Error("Redis lock backend unavailable, falling back to in-process locks",
			"addr", cfg.Cache.RedisHost, "error", err)
		_ = client.Close()
		return NewMemory()
	}

	logging.Info("Using Redis for destination locks", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.LockDB)
	return NewRedis(client, cfg.Locks.TTL, cfg.Locks.RetryInterval)
}
