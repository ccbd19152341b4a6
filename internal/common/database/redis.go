// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"loan-eligibility/internal/common/config"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// RedisClient holds the prediction cache connection.
type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     poolSize,
		MinIdleConns: poolSize / 2,
	})

	return &RedisClient{Client: rdb}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// GetClient returns the underlying client; nil when c is nil so an optional
// cache can be passed straight through.
func (c *RedisClient) GetClient() *redis.Client {
	if c == nil {
		return nil
	}
	return c.Client
}

// DeleteMatching scans for keys matching pattern and deletes every one for
// which keep returns false. It returns the number of keys deleted.
func DeleteMatching(ctx context.Context, rdb *redis.Client, pattern string, keep func(key string) bool) (int, error) {
	var stale []string
	iter := rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		if key := iter.Val(); !keep(key) {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan %s: %w", pattern, err)
	}

	deleted := 0
	for start := 0; start < len(stale); start += scanBatch {
		end := start + scanBatch
		if end > len(stale) {
			end = len(stale)
		}
		n, err := rdb.Del(ctx, stale[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete stale keys: %w", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}
