package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore хранит учётные данные профиля в Redis Hash `prefix+profile`
// с полями access_token, refresh_token, token_expiry.
type RedisStore struct {
	rdb   *redis.Client
	key   string
	owned bool
}

// NewRedisStore создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой - используется "agricare:cred:", profile - "default".
func NewRedisStore(ctx context.Context, redisURL, prefix, profile string) (*RedisStore, error) {
	const op = "credstore.NewRedisStore"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	st := NewRedisStoreFromClient(rdb, prefix, profile)
	st.owned = true

	return st, nil
}

// NewRedisStoreFromClient использует уже созданный клиент; Close его не закрывает.
func NewRedisStoreFromClient(rdb *redis.Client, prefix, profile string) *RedisStore {
	if prefix == "" {
		prefix = "agricare:cred:"
	}

	if profile == "" {
		profile = "default"
	}

	return &RedisStore{rdb: rdb, key: prefix + profile}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credstore.RedisStore.Get: %w", err)
	}

	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.HSet(ctx, r.key, key, value).Err(); err != nil {
		return fmt.Errorf("credstore.RedisStore.Set: %w", err)
	}

	return nil
}

// SetMany пишет все поля одной командой HSET.
func (r *RedisStore) SetMany(ctx context.Context, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}

	args := make([]any, 0, len(kv)*2)
	for k, v := range kv {
		args = append(args, k, v)
	}

	if err := r.rdb.HSet(ctx, r.key, args...).Err(); err != nil {
		return fmt.Errorf("credstore.RedisStore.SetMany: %w", err)
	}

	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := r.rdb.HDel(ctx, r.key, keys...).Err(); err != nil {
		return fmt.Errorf("credstore.RedisStore.Delete: %w", err)
	}

	return nil
}

func (r *RedisStore) Close() error {
	if !r.owned {
		return nil
	}

	return r.rdb.Close()
}

var (
	_ Store       = (*RedisStore)(nil)
	_ BatchSetter = (*RedisStore)(nil)
)
