package cache

import "errors"

var (
	// ErrRedisNotAvailable Redis不可用错误
	ErrRedisNotAvailable = errors.New("redis not available")

	// ErrLockNotAcquired 获取锁失败错误
	ErrLockNotAcquired = errors.New("distributed lock not acquired")

	// ErrAlreadyVoted 同一投票人重复投票
	ErrAlreadyVoted = errors.New("voter already voted on this poll")
)
