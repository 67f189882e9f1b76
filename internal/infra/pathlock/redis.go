package pathlock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"html2image/internal/infra/logging"
)

const (
	keyPrefix      = "html2image:lock:"
	releaseTimeout = 2 * time.Second
)

// releaseScript deletes the lock only while it still carries our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every replica using the same Redis database.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis creates a Redis locker. ttl bounds how long a crashed holder can
// block others; retry is the polling interval while waiting.
func NewRedis(client redis.UniversalClient, ttl, retry time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, retry: retry}
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := redisKey(key)
	token := xid.New().String()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
				logging.Warn("Failed to release destination lock", "key", key, "error", err)
			}
		})
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
