package translate

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"pdf-translator/internal/types"
)

// RedisCache shares translations between runs and machines.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DefaultCacheTTL is how long a cached translation lives in Redis.
const DefaultCacheTTL = 30 * 24 * time.Hour

// NewRedisCache connects to the Redis server at url and checks the
// connection.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, types.NewPDFError(types.ErrCacheFailed, "failed to parse Redis URL", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, types.NewPDFError(types.ErrCacheFailed, "failed to connect to Redis", err)
	}
	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, prefix: "pdft:tr:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, types.NewPDFError(types.ErrCacheFailed, "redis get failed", err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, translation string) error {
	if err := c.client.Set(ctx, c.prefix+key, translation, c.ttl).Err(); err != nil {
		return types.NewPDFError(types.ErrCacheFailed, "redis set failed", err)
	}
	return nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
