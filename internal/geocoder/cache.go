package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"skill-runner/pkg/logging"
)

// Cache stores successful lookups. Implementations swallow their own
// errors; a cache problem only costs an extra API call.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, res Result)
}

// RedisCache keeps results as JSON strings with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.ComponentLogger
}

// NewRedisCache connects lazily to addr.
func NewRedisCache(addr, password string, ttl time.Duration, log *logging.Logger) *RedisCache {
	if log == nil {
		log = logging.Default()
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl:    ttl,
		log:    log.WithComponent("geocode_cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed", logging.String("key", key), logging.Error(err))
		}
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.log.Warn("dropping unreadable cache entry", logging.String("key", key), logging.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return Result{}, false
	}
	return res, true
}

func (c *RedisCache) Set(ctx context.Context, key string, res Result) {
	res.Cached = false
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", logging.String("key", key), logging.Error(err))
	}
}

// Ping checks the connection for health reporting.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }
