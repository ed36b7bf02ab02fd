package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/nurse-directory/internal/models"
)

// RedisCache implements Cache using redis string keys with TTL.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache for addr. timeout bounds dial, read, and
// write; zero uses the client defaults.
func NewRedisCache(addr, password string, db int, timeout time.Duration) *RedisCache {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return &RedisCache{client: redis.NewClient(opts)}
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Backend implements Cache.
func (c *RedisCache) Backend() string { return "redis" }

// Get implements Cache.Get.
func (c *RedisCache) Get(ctx context.Context, key string) (models.CityInfo, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CityInfo{}, false, nil
		}
		return models.CityInfo{}, false, err
	}
	var data models.CityInfo
	if err := json.Unmarshal(raw, &data); err != nil {
		return models.CityInfo{}, false, err
	}
	return data, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value models.CityInfo, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, raw, ttl).Err()
}

// Ping checks if redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
