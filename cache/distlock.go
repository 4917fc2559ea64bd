package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DistributedLockService 分布式锁服务
type DistributedLockService struct {
	rs *redsync.Redsync
}

// NewLockService 基于已有Redis客户端创建分布式锁服务
func NewLockService(client *redis.Client) *DistributedLockService {
	// 创建Redis连接池
	pool := goredis.NewPool(client)
	return &DistributedLockService{rs: redsync.New(pool)}
}

// AcquireLock 尝试获取锁，带有超时时间
func (s *DistributedLockService) AcquireLock(ctx context.Context, lockName string, expiry time.Duration) (*redsync.Mutex, error) {
	mutex := s.rs.NewMutex(lockName,
		redsync.WithExpiry(expiry),
		redsync.WithTries(5),                        // 最大重试次数
		redsync.WithRetryDelay(50*time.Millisecond), // 重试延迟
		redsync.WithDriftFactor(0.01),               // 时钟漂移因子
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
	}
	return mutex, nil
}

// ReleaseLock 释放锁
func (s *DistributedLockService) ReleaseLock(ctx context.Context, mutex *redsync.Mutex) (bool, error) {
	return mutex.UnlockContext(ctx)
}

// WithLock 在锁内执行操作，获取锁失败时不执行action
func (s *DistributedLockService) WithLock(ctx context.Context, lockName string, expiry time.Duration, action func() error) error {
	mutex, err := s.AcquireLock(ctx, lockName, expiry)
	if err != nil {
		return err
	}

	// 确保解锁
	defer func() {
		_, _ = s.ReleaseLock(context.WithoutCancel(ctx), mutex)
	}()

	return action()
}
