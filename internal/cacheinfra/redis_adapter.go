package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// scanBatch is the COUNT hint used while scanning keys for prefix deletion.
const scanBatch = 500

// RedisStore implements the key-value store contract on a redis client.
type RedisStore struct {
	r redis.Cmdable
}

// NewRedisStore wraps an existing redis client (single node, cluster or ring).
func NewRedisStore(r redis.Cmdable) *RedisStore {
	return &RedisStore{r: r}
}

// NewRedisClient creates a redis client from cfg and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Get returns the stored string. redis.Nil and empty values are misses.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.r.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, val != "", nil
}

// Set issues SET key value, adding an expiry only when ttl > 0.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.r.Set(ctx, key, value, ttl).Err()
}

// Delete removes the key; absence is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.r.Del(ctx, key).Err()
}

// DeleteByPrefix scans for keys matching prefix* and deletes them in batches.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := s.r.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := s.r.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(batch) > 0 {
		return s.r.Del(ctx, batch...).Err()
	}
	return nil
}

// TTL reports the remaining lifetime of key as seen by the server.
// ok is false for missing keys; a zero duration with ok means no expiry.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.r.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	switch {
	case d == -2:
		return 0, false, nil
	case d < 0:
		return 0, true, nil
	}
	return d, true, nil
}

// Close releases the underlying client when it owns connections.
func (s *RedisStore) Close() error {
	if c, ok := s.r.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
