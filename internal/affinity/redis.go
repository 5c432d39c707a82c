package affinity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore shares affinity entries across replicas as JSON values.
type redisStore struct {
	client *redis.Client
}

func newRedisStore(client *redis.Client) *redisStore {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, key string, ttl time.Duration) (Entry, bool, error) {
	data, errGet := s.client.Get(ctx, key).Bytes()
	if errGet != nil {
		if errGet == redis.Nil {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("affinity: redis get: %w", errGet)
	}
	var entry Entry
	if errUnmarshal := json.Unmarshal(data, &entry); errUnmarshal != nil {
		// A corrupt entry is worthless; drop it rather than erroring forever.
		_ = s.client.Del(ctx, key).Err()
		return Entry{}, false, nil
	}
	if ttl > 0 {
		_ = s.client.Expire(ctx, key, ttl).Err()
	}
	return entry, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, errMarshal := json.Marshal(entry)
	if errMarshal != nil {
		return fmt.Errorf("affinity: marshal entry: %w", errMarshal)
	}
	if errSet := s.client.Set(ctx, key, data, ttl).Err(); errSet != nil {
		return fmt.Errorf("affinity: redis set: %w", errSet)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if errDel := s.client.Del(ctx, key).Err(); errDel != nil {
		return fmt.Errorf("affinity: redis del: %w", errDel)
	}
	return nil
}
