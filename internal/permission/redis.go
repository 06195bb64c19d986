package permission

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores Status in a Redis hash keyed by device.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache builds a cache under "permissions:<deviceID>".
func NewRedisCache(client *redis.Client, deviceID string, ttl time.Duration) *RedisCache {
	if deviceID == "" {
		deviceID = "default"
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisCache{client: client, key: "permissions:" + deviceID, ttl: ttl}
}

// Load reads the hash; a missing key yields an all-unasked Status.
func (c *RedisCache) Load(ctx context.Context) (Status, error) {
	vals, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return Status{}.Normalize(), err
	}
	return Status{Camera: Grant(vals["camera"]), Location: Grant(vals["location"])}.Normalize(), nil
}

// Store writes both grants and refreshes the expiry.
func (c *RedisCache) Store(ctx context.Context, s Status) error {
	s = s.Normalize()
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.key, "camera", string(s.Camera), "location", string(s.Location))
	pipe.Expire(ctx, c.key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}
