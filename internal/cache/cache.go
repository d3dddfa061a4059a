// Package cache holds the single short-lived aggregate snapshot in Redis.
// The cache is best-effort: every failure is logged and reported as a miss so
// callers fall through to live computation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nadmax/pipepulse/internal/metrics"
)

const (
	DashboardKey = "pipepulse:analytics:dashboard"
	DefaultTTL   = 5 * time.Minute
)

type entry struct {
	CachedAt time.Time       `json:"cached_at"`
	Data     json.RawMessage `json:"data"`
}

type AggregateCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	now    func() time.Time
}

func NewAggregateCache(redisAddr string, ttl time.Duration) (*AggregateCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewAggregateCacheFromClient(client, ttl), nil
}

func NewAggregateCacheFromClient(client *redis.Client, ttl time.Duration) *AggregateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &AggregateCache{
		client: client,
		key:    DashboardKey,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *AggregateCache) TTL() time.Duration {
	return c.ttl
}

// Get decodes the cached aggregate into dest. It reports false on a miss, on
// any Redis or decode error, and when the entry is older than the TTL even if
// Redis still holds it; a stale entry is deleted.
func (c *AggregateCache) Get(ctx context.Context, dest any) bool {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return false
	}
	if err != nil {
		log.Printf("Failed to read aggregate cache: %v", err)
		metrics.RecordCacheError()
		return false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Printf("Failed to decode aggregate cache entry: %v", err)
		metrics.RecordCacheError()
		return false
	}

	if c.now().Sub(e.CachedAt) > c.ttl {
		if err := c.client.Del(ctx, c.key).Err(); err != nil {
			log.Printf("Failed to delete stale aggregate cache entry: %v", err)
		}
		metrics.RecordCacheMiss()
		return false
	}

	if err := json.Unmarshal(e.Data, dest); err != nil {
		log.Printf("Failed to decode cached aggregate: %v", err)
		metrics.RecordCacheError()
		return false
	}

	metrics.RecordCacheHit()
	return true
}

// Set stores value stamped with the current time. Last writer wins.
func (c *AggregateCache) Set(ctx context.Context, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}

	raw, err := json.Marshal(entry{CachedAt: c.now(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode aggregate cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write aggregate cache: %w", err)
	}

	return nil
}

func (c *AggregateCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to clear aggregate cache: %w", err)
	}

	metrics.RecordCacheInvalidation()
	return nil
}

func (c *AggregateCache) Close() error {
	return c.client.Close()
}
