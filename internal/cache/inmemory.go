package cache

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	questions []string
	expiresAt time.Time
}

// InMemoryCache is a single-process question cache for local/dev use.
type InMemoryCache struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (c *InMemoryCache) Pop(_ context.Context, role, seniority string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := questionKey(role, seniority)
	b, ok := c.buckets[key]
	if !ok {
		return "", false, nil
	}
	if !b.expiresAt.IsZero() && c.now().After(b.expiresAt) {
		delete(c.buckets, key)
		return "", false, nil
	}
	if len(b.questions) == 0 {
		delete(c.buckets, key)
		return "", false, nil
	}
	q := b.questions[0]
	b.questions = b.questions[1:]
	if len(b.questions) == 0 {
		delete(c.buckets, key)
	}
	return q, true, nil
}

func (c *InMemoryCache) Stage(_ context.Context, role, seniority string, questions []string, ttl time.Duration) error {
	if len(questions) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := questionKey(role, seniority)
	b, ok := c.buckets[key]
	if !ok || (!b.expiresAt.IsZero() && c.now().After(b.expiresAt)) {
		b = &bucket{}
		c.buckets[key] = b
	}
	b.questions = append(b.questions, questions...)
	if ttl > 0 {
		b.expiresAt = c.now().Add(ttl)
	}
	return nil
}

func (c *InMemoryCache) Close() error { return nil }
