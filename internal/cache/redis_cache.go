package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kulakan/internal/domain"
)

const productKeyPrefix = "kulakan:product:"

type RedisProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProductCache wraps a client the caller owns; Close closes it.
func NewRedisProductCache(client *redis.Client, ttl time.Duration) *RedisProductCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisProductCache{client: client, ttl: ttl}
}

func (c *RedisProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisProductCache) Close() error {
	return c.client.Close()
}

func (c *RedisProductCache) Get(ctx context.Context, sku string) (*domain.Product, bool, error) {
	val, err := c.client.Get(ctx, productKeyPrefix+sku).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var product domain.Product
	if err := json.Unmarshal([]byte(val), &product); err != nil {
		return nil, false, err
	}
	return &product, true, nil
}

func (c *RedisProductCache) Set(ctx context.Context, product domain.Product) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, productKeyPrefix+product.SKU, payload, c.ttl).Err()
}

func (c *RedisProductCache) Delete(ctx context.Context, sku string) error {
	return c.client.Del(ctx, productKeyPrefix+sku).Err()
}
