package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisIdempotencyStore implements IdempotencyStore for Redis
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisIdempotencyStore creates a new Redis idempotency store on an
// existing client
func NewRedisIdempotencyStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RedisIdempotencyStore) key(key string) string {
	return fmt.Sprintf("%sidempotency:%s", s.prefix, key)
}

// Get retrieves a cached response
func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a response with TTL
func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

// Delete removes an idempotency key
func (s *RedisIdempotencyStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Ping checks the Redis connection
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisIdempotencyStore) Close() error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// CacheIdempotencyStore implements IdempotencyStore on an in-process cache,
// for deployments without Redis
type CacheIdempotencyStore struct {
	cache *InMemoryCache
}

// NewCacheIdempotencyStore creates an idempotency store backed by cache
func NewCacheIdempotencyStore(cache *InMemoryCache) *CacheIdempotencyStore {
	return &CacheIdempotencyStore{cache: cache}
}

// Get retrieves a cached response
func (s *CacheIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Set stores a copy of value with TTL
func (s *CacheIdempotencyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)
	return s.cache.Set(ctx, key, data, ttl)
}

// Delete removes an idempotency key
func (s *CacheIdempotencyStore) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}

// Ping always succeeds
func (s *CacheIdempotencyStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cache cleanup loop
func (s *CacheIdempotencyStore) Close() error {
	s.cache.Close()
	return nil
}
