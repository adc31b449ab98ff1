package vitals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	latestKeyPrefix = "lifelink:vitals:latest:"

	// DefaultLatestTTL is how long the latest reading stays cached.
	DefaultLatestTTL = 10 * time.Minute
)

// LatestCache holds each user's most recent reading.
type LatestCache interface {
	Get(ctx context.Context, userID string) (*Reading, error)
	Set(ctx context.Context, r *Reading) error
}

// RedisCache stores the latest reading as JSON with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache. A zero TTL uses DefaultLatestTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached reading, or ErrNoReadings on a miss.
func (c *RedisCache) Get(ctx context.Context, userID string) (*Reading, error) {
	val, err := c.client.Get(ctx, latestKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoReadings
		}
		return nil, fmt.Errorf("failed to get latest vitals: %w", err)
	}

	var r Reading
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest vitals: %w", err)
	}
	r.UserID = userID
	return &r, nil
}

// Set caches r as the user's latest reading.
func (c *RedisCache) Set(ctx context.Context, r *Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal latest vitals: %w", err)
	}
	if err := c.client.Set(ctx, latestKeyPrefix+r.UserID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache latest vitals: %w", err)
	}
	return nil
}
