// Package ratelimit provides the storage behind fiber's limiter middleware.
package ratelimit

import (
	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"

	"html2image/internal/infra/logging"
)

type RedisConfig struct {
	Addr string
	DB   int
}

// NewStore returns a Redis-backed store so limits hold across replicas, or an
// in-memory store when Redis is not configured or unreachable.
func NewStore(cfg RedisConfig) (store fiber.Storage) {
	store = memoryStorage.New() // safe default
	if cfg.Addr == "" {
		return store
	}

	// redis storage panics when the initial ping fails
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Addr},
		Database: cfg.DB,
	})
	logging.Info("Using Redis for rate limiting", "addr", cfg.Addr, "db", cfg.DB)
	return store
}
