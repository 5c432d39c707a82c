package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL bounds how long a counter can live without activity. Releases
// normally clean up; the TTL catches slots leaked by crashed processes.
const counterTTL = 15 * time.Minute

// acquireScript atomically checks the cap and increments the counter.
// KEYS[1] counter key, ARGV[1] limit (0 = unlimited), ARGV[2] ttl seconds.
// Returns {granted, current}.
var acquireScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if limit > 0 and current >= limit then
	return {0, current}
end
current = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {1, current}
`)

// releaseScript decrements the counter without going below zero.
// Returns the new value.
var releaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 1 then
	redis.call('DEL', KEYS[1])
	return 0
end
return redis.call('DECR', KEYS[1])
`)

// redisBackend shares counters through Redis so every replica sees the same
// in-flight numbers.
type redisBackend struct {
	client *redis.Client
}

func newRedisBackend(client *redis.Client) *redisBackend {
	return &redisBackend{client: client}
}

func (b *redisBackend) Acquire(ctx context.Context, key string, limit int) (bool, int, error) {
	if limit < 0 {
		limit = 0
	}
	ttlSeconds := int(counterTTL / time.Second)
	result, errRun := acquireScript.Run(ctx, b.client, []string{key}, limit, ttlSeconds).Result()
	if errRun != nil {
		return false, 0, fmt.Errorf("concurrency: redis acquire: %w", errRun)
	}
	values, ok := result.([]any)
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("concurrency: redis acquire: unexpected reply %v", result)
	}
	granted, _ := values[0].(int64)
	current, _ := values[1].(int64)
	return granted == 1, int(current), nil
}

func (b *redisBackend) Release(ctx context.Context, key string) (int, error) {
	result, errRun := releaseScript.Run(ctx, b.client, []string{key}).Result()
	if errRun != nil {
		return 0, fmt.Errorf("concurrency: redis release: %w", errRun)
	}
	current, _ := result.(int64)
	return int(current), nil
}

func (b *redisBackend) Current(ctx context.Context, key string) (int, error) {
	value, errGet := b.client.Get(ctx, key).Int()
	if errGet != nil {
		if errGet == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("concurrency: redis current: %w", errGet)
	}
	return value, nil
}
