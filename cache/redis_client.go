package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient 定义本服务用到的Redis命令，*redis.Client直接满足该接口
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

var _ RedisClient = (*redis.Client)(nil)
