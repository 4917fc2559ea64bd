package cache

import (
	"context"
	"fmt"
	"time"
)

// VoteGuard 调用层的投票去重策略：同一投票人对同一投票只能投一次
type VoteGuard struct {
	client RedisClient
	ttl    time.Duration
}

// NewVoteGuard 创建去重器，ttl为0时使用24小时
func NewVoteGuard(client RedisClient, ttl time.Duration) *VoteGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &VoteGuard{client: client, ttl: ttl}
}

func voteLockKey(pollID, voterID string) string {
	return fmt.Sprintf("vote_lock:poll:%s:voter:%s", pollID, voterID)
}

// Claim 登记投票人，已登记过时返回ErrAlreadyVoted
func (g *VoteGuard) Claim(ctx context.Context, pollID, voterID string) error {
	if g == nil || g.client == nil {
		return ErrRedisNotAvailable
	}
	ok, err := g.client.SetNX(ctx, voteLockKey(pollID, voterID), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim vote lock: %w", err)
	}
	if !ok {
		return ErrAlreadyVoted
	}
	return nil
}

// Release 投票失败时撤销登记，允许重试
func (g *VoteGuard) Release(ctx context.Context, pollID, voterID string) error {
	if g == nil || g.client == nil {
		return ErrRedisNotAvailable
	}
	return g.client.Del(ctx, voteLockKey(pollID, voterID)).Err()
}
