package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sealed blobs under plutus:<account>:<slot>
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore connects to addr
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Ping checks connectivity
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func redisKey(account, slot string) string {
	return fmt.Sprintf("plutus:%s:%s", account, slot)
}

func (r *RedisStore) Put(ctx context.Context, account, slot string, blob []byte) error {
	if err := r.client.Set(ctx, redisKey(account, slot), blob, 0).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", slot, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, account, slot string) ([]byte, bool, error) {
	blob, err := r.client.Get(ctx, redisKey(account, slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s: %w", slot, err)
	}
	return blob, true, nil
}
