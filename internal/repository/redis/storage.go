package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tastybites/storefront/internal/repository"
	apperrors "github.com/tastybites/storefront/pkg/errors"
)

// LocalStorage implements repository.LocalStorage on Redis. Every read or
// write pushes the key's expiry out by ttl, so an active session's cart
// never expires while an abandoned one eventually does.
type LocalStorage struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.LocalStorage = (*LocalStorage)(nil)

// NewLocalStorage creates a new Redis-backed local storage.
func NewLocalStorage(client *redis.Client, ttl time.Duration) *LocalStorage {
	return &LocalStorage{
		client: client,
		ttl:    ttl,
	}
}

// Read returns the blob stored under key.
func (s *LocalStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetEx(ctx, key, s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("local storage key", key)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Write stores data under key with the configured TTL.
func (s *LocalStorage) Write(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *LocalStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
