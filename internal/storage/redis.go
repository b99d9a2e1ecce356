package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps objects in Redis. Suitable for deployments where artifacts
// should be shared between instances without a full object storage service.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds the lifetime of stored objects. Zero means no expiry.
	TTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("storage: ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Exists reports whether an object is present under the key.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("storage: no store configured")
	}
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("storage: redis exists: %w", err)
	}
	return n > 0, nil
}

// Get returns the full object content.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("storage: no store configured")
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("storage: redis get: %w", err)
	}
	return data, nil
}

// Put writes the object, overwriting any previous value under the key.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s == nil || s.client == nil {
		return errors.New("storage: no store configured")
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storage: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ ObjectStore = (*RedisStore)(nil)
