package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares staged questions across service instances. LPOP gives
// the atomic-pop guarantee.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Pop(ctx context.Context, role, seniority string) (string, bool, error) {
	q, err := c.client.LPop(ctx, questionKey(role, seniority)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("pop question: %w", err)
	}
	return q, true, nil
}

func (c *RedisCache) Stage(ctx context.Context, role, seniority string, questions []string, ttl time.Duration) error {
	if len(questions) == 0 {
		return nil
	}
	key := questionKey(role, seniority)
	values := make([]any, len(questions))
	for i, q := range questions {
		values[i] = q
	}
	if err := c.client.RPush(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("stage questions: %w", err)
	}
	if ttl > 0 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("expire question key: %w", err)
		}
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
