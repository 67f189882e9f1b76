package pathlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"html2image/internal/config"
)

func newRedisLocker(t *testing.T, mr *miniredis.Miniredis) *Redis {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedis(client, time.Minute, 5*time.Millisecond)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRedisLockExclusiveAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newRedisLocker(t, mr)
	b := newRedisLocker(t, mr)

	unlock, err := a.Lock(context.Background(), "/output/x/a.png")
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisKey("/output/x/a.png")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.Lock(ctx, "/output/x/a.png")
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	unlock()
	assert.False(t, mr.Exists(redisKey("/output/x/a.png")))

	unlockB, err := b.Lock(context.Background(), "/output/x/a.png")
	require.NoError(t, err)
	unlockB()
}

func TestRedisLockWaitsForRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newRedisLocker(t, mr)
	b := newRedisLocker(t, mr)

	unlock, err := a.Lock(context.Background(), "k")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlockB, err := b.Lock(context.Background(), "k")
		if err == nil {
			unlockB()
		}
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatalf("second client never acquired the lock")
	}
}

func TestRedisUnlockKeepsForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newRedisLocker(t, mr)
	b := newRedisLocker(t, mr)

	unlockA, err := a.Lock(context.Background(), "k")
	require.NoError(t, err)

	// a's lock expires and b takes over
	mr.FastForward(2 * time.Minute)
	unlockB, err := b.Lock(context.Background(), "k")
	require.NoError(t, err)

	unlockA()
	assert.True(t, mr.Exists(redisKey("k")), "stale holder must not release a newer lock")

	unlockB()
	assert.False(t, mr.Exists(redisKey("k")))
}

func TestRedisLockSetsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	l := newRedisLocker(t, mr)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()
	assert.Equal(t, time.Minute, mr.TTL(redisKey("k")))
}

func TestRedisLockBackendError(t *testing.T) {
	mr := miniredis.RunT(t)
	l := newRedisLocker(t, mr)
	mr.Close()

	_, err := l.Lock(context.Background(), "k")
	require.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Defaults()
	_, ok := New(cfg).(*Memory)
	assert.True(t, ok, "memory backend by default")

	mr := miniredis.RunT(t)
	cfg.Locks.Backend = config.LockBackendRedis
	cfg.Cache.RedisHost = mr.Addr()
	l := New(cfg)
	defer l.Close()
	_, ok = l.(*Redis)
	assert.True(t, ok, "redis backend when reachable")

	cfg.Cache.RedisHost = "127.0.0.1:1"
	_, ok = New(cfg).(*Memory)
	assert.True(t, ok, "falls back to memory when redis is down")
}
