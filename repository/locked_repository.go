package repository

import (
	"context"
	"log/slog"
	"time"

	"group-voting-backend/models"
)

// Locker 跨进程互斥
type Locker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error
}

// 保存锁的名称和过期时间
const (
	SaveLockName   = "lock:polls"
	SaveLockExpiry = 5 * time.Second
)

// LockedPollRepository 在分布式锁内保存，避免多个实例交错写入。
// 拿不到锁时退化为直接写入（后写覆盖）。
type LockedPollRepository struct {
	inner  PollRepository
	locker Locker
	logger *slog.Logger
}

// NewLockedPollRepository 包装仓库，locker为nil时直接透传
func NewLockedPollRepository(inner PollRepository, locker Locker, logger *slog.Logger) *LockedPollRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockedPollRepository{inner: inner, locker: locker, logger: logger}
}

func (r *LockedPollRepository) Load(ctx context.Context) ([]models.Poll, error) {
	return r.inner.Load(ctx)
}

func (r *LockedPollRepository) Save(ctx context.Context, polls []models.Poll) error {
	if r.locker == nil {
		return r.inner.Save(ctx, polls)
	}

	var saveErr error
	saved := false
	lockErr := r.locker.WithLock(ctx, SaveLockName, SaveLockExpiry, func() error {
		saved = true
		saveErr = r.inner.Save(ctx, polls)
		return saveErr
	})
	if saved {
		return saveErr
	}

	r.logger.Warn("获取保存锁失败，直接写入", "lock", SaveLockName, "error", lockErr)
	return r.inner.Save(ctx, polls)
}
