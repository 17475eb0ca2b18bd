package cache

import (
	"context"
	"strings"
)

// NewCache creates a redis-backed cache when configured, otherwise in-memory.
func NewCache(ctx context.Context, redisURL string) (QuestionCache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewInMemoryCache(), nil
	}
	return NewRedisCache(ctx, redisURL)
}
