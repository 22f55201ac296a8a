package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared between instances. Keys expire after TTL so a
// crashed holder cannot wedge a bounty forever. A live holder keeps extending
// its key every TTL/3 until it unlocks.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	poll   time.Duration
	prefix string
	log    *zap.Logger
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		rdb:    rdb,
		ttl:    ttl,
		poll:   25 * time.Millisecond,
		prefix: "lock:",
		log:    log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := ulid.Make().String()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
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

	done := make(chan struct{})
	go l.watch(redisKey, token, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
				l.log.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (l *RedisLocker) watch(redisKey, token string, done <-chan struct{}) {
	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := extendScript.Run(ctx, l.rdb, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			l.log.Warn("Failed to extend lock", zap.String("key", redisKey), zap.Error(err))
			continue
		}
		if n == 0 {
			l.log.Error("Lock lost while held", zap.String("key", redisKey))
			return
		}
	}
}
