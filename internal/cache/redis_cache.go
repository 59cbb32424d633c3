package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"rgsons/backend/internal/domain"
)

const voucherConfigKeyPrefix = "rgsons:voucher-config:"

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisVoucherConfigCache struct {
	client *redis.Client
}

func NewRedisVoucherConfigCache(client *redis.Client) *RedisVoucherConfigCache {
	return &RedisVoucherConfigCache{client: client}
}

func (c *RedisVoucherConfigCache) Get(ctx context.Context, voucherType string) (*domain.VoucherConfig, bool, error) {
	val, err := c.client.Get(ctx, voucherConfigKeyPrefix+voucherType).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cfg domain.VoucherConfig
	if err := json.Unmarshal([]byte(val), &cfg); err != nil {
		return nil, false, err
	}
	return &cfg, true, nil
}

func (c *RedisVoucherConfigCache) Set(ctx context.Context, value *domain.VoucherConfig, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, voucherConfigKeyPrefix+value.VoucherType, payload, ttl).Err()
}

func (c *RedisVoucherConfigCache) Invalidate(ctx context.Context, voucherType string) error {
	return c.client.Del(ctx, voucherConfigKeyPrefix+voucherType).Err()
}
