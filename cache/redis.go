package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"group-voting-backend/config"

	"github.com/redis/go-redis/v9"
)

// InitRedis 创建Redis客户端并测试连接。
// 连接失败时返回ErrRedisNotAvailable，调用方决定是否降级。
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, ErrRedisNotAvailable
	}

	slog.Info("初始化Redis连接", "addr", cfg.Addr)

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		PoolSize:    10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisNotAvailable, err)
	}

	slog.Info("Redis连接初始化成功")
	return client, nil
}

// CloseRedis 关闭Redis连接
func CloseRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		slog.Error("关闭Redis连接失败", "error", err)
		return
	}
	slog.Info("Redis连接已关闭")
}
