package travel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed travel-time store, shared across planner
// processes. Entries expire after TTL so a refreshed road network is
// eventually picked up.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStoreConfig holds configuration for the Redis store.
type RedisStoreConfig struct {
	// Client is the Redis client (required).
	Client *redis.Client

	// Prefix namespaces the travel keys. Default: "travel".
	Prefix string

	// TTL is the entry lifetime. Default: 30 days.
	TTL time.Duration
}

// NewRedisStore creates a Redis-backed travel-time store.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "travel"
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisStore{client: cfg.Client, prefix: prefix, ttl: ttl}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (int, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get travel pair: %w", err)
	}
	minutes, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("redis parse travel pair %q: %w", val, err)
	}
	return minutes, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, minutes int) error {
	if err := s.client.Set(ctx, s.prefix+":"+key, strconv.Itoa(minutes), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set travel pair: %w", err)
	}
	return nil
}
