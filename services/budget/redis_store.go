package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps spend counters in Redis so multiple gateway replicas
// account against the same totals.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Add(ctx context.Context, key string, amount float64) (float64, error) {
	total, err := s.client.IncrByFloat(ctx, key, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrbyfloat %s: %w", key, err)
	}
	return total, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (float64, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	total, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis get %s: non-numeric counter %q", key, val)
	}
	return total, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value float64, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
