package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the record under one key. SET replaces the value
// atomically.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store backed by Redis.
func NewRedisStore(addr, password string, db int, slot string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(rdb, slot)
}

// NewRedisStoreWithClient reuses an existing client.
func NewRedisStoreWithClient(client *redis.Client, slot string) *RedisStore {
	if slot == "" {
		slot = "default"
	}
	return &RedisStore{client: client, key: "client_session:" + slot}
}

func (r *RedisStore) Load(ctx context.Context) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *RedisStore) Save(ctx context.Context, snapshot []byte) error {
	return r.client.Set(ctx, r.key, snapshot, 0).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
