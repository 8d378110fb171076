package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HintCache remembers which tenant database a login identifier was last
// discovered in, so the next discovery can probe that tenant first.
type HintCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*HintCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &HintCache{client: client, ttl: ttl}, nil
}

func (c *HintCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("redis.HintCache.Close: %w", err)
	}
	return nil
}

// Get returns the hinted tenant database for login. ok is false when no
// hint is stored.
func (c *HintCache) Get(ctx context.Context, login string) (database string, ok bool, err error) {
	database, err = c.client.Get(ctx, HintKey(login)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis.HintCache.Get: %w", err)
	}
	return database, true, nil
}

func (c *HintCache) Set(ctx context.Context, login, database string) error {
	if err := c.client.Set(ctx, HintKey(login), database, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis.HintCache.Set: %w", err)
	}
	return nil
}

func (c *HintCache) Delete(ctx context.Context, login string) error {
	if err := c.client.Del(ctx, HintKey(login)).Err(); err != nil {
		return fmt.Errorf("redis.HintCache.Delete: %w", err)
	}
	return nil
}

// HintKey returns the Redis key holding the hint for login.
func HintKey(login string) string {
	return "tillpoint:discovery:" + login
}
