package repository

import (
	"context"
	"errors"

	"group-voting-backend/cache"

	"github.com/redis/go-redis/v9"
)

// RedisStore 基于Redis字符串键的存储，不设置过期时间
type RedisStore struct {
	client cache.RedisClient
	prefix string
}

// NewRedisStore 创建Redis存储，prefix用于区分部署环境，可为空
func NewRedisStore(client cache.RedisClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.client == nil {
		return "", false, cache.ErrRedisNotAvailable
	}
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	if s.client == nil {
		return cache.ErrRedisNotAvailable
	}
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}
