package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"optionflow/internal/domain"
)

// RedisCache implements QuoteCache on redis. Keys are
// "<prefix><symbol>" and carry a TTL so symbols that stop ticking
// vanish on their own.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, prefix string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}, nil
}

// Put overwrites the cached quote for the tick's symbol.
func (c *RedisCache) Put(ctx context.Context, tick *domain.RawTick) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("marshal cached quote: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+tick.Symbol, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache quote %s: %w", tick.Symbol, err)
	}
	return nil
}

// Close releases the redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ QuoteCache = (*RedisCache)(nil)
