package assets

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is the redis backed RemoteCache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redis and checks the connection.
func NewRedisCache(ctx context.Context, address string) (*RedisCache, error) {
	rdc := redis.NewClient(&redis.Options{
		Addr:        address,
		ReadTimeout: time.Second * 20,
	})

	if err := rdc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: rdc}, nil
}

func (c *RedisCache) SetString(ctx context.Context, key, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) GetString(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Close closes the redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
