package contentstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"veridoc/pkg/platform/sentinel"
)

const blobKeyPrefix = "blob:"

// RedisStore stores blobs as plain Redis string values keyed by content
// address. Blobs are immutable so no TTL is applied.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, data []byte) (Address, error) {
	addr := AddressOf(data)
	if err := s.client.Set(ctx, blobKeyPrefix+string(addr), data, 0).Err(); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return addr, nil
}

func (s *RedisStore) Get(ctx context.Context, addr Address) ([]byte, error) {
	data, err := s.client.Get(ctx, blobKeyPrefix+string(addr)).Bytes()
	if err == redis.Nil {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}
	return data, nil
}
