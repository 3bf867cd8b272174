package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache abstracts the Redis operations used by RedisStore to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Del removes a key from Redis.
func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// RedisStore keeps previews in Redis so that any server instance can
// serve them. Every entry carries a TTL.
type RedisStore struct {
	cache Cache
}

// NewRedisStore wraps cache as a preview store.
func NewRedisStore(cache Cache) *RedisStore {
	return &RedisStore{cache: cache}
}

func redisKey(id string) string {
	return fmt.Sprintf("preview:%s", id)
}

func (s *RedisStore) Put(ctx context.Context, id string, blob Blob, ttl time.Duration) error {
	serialized, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, redisKey(id), string(serialized), ttl)
}

func (s *RedisStore) Get(ctx context.Context, id string) (Blob, error) {
	value, err := s.cache.Get(ctx, redisKey(id))
	if errors.Is(err, redis.Nil) {
		return Blob{}, ErrNotFound
	}
	if err != nil {
		return Blob{}, err
	}
	var blob Blob
	if err := json.Unmarshal([]byte(value), &blob); err != nil {
		return Blob{}, fmt.Errorf("decode preview %s: %w", id, err)
	}
	return blob, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.cache.Del(ctx, redisKey(id))
}
