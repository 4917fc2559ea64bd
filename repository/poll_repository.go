package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"group-voting-backend/models"
)

// 固定的存储键
const (
	PollsKey  = "polls"
	GroupsKey = "groups"
)

// ErrMalformedData 存储中的数据无法解析
var ErrMalformedData = errors.New("malformed stored data")

// KVStore 键值存储，投票集合整体序列化为JSON保存在一个键下
type KVStore interface {
	// Get 返回键对应的值，键不存在时found为false
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
}

// PollRepository 定义投票集合的读写接口
type PollRepository interface {
	Load(ctx context.Context) ([]models.Poll, error)
	Save(ctx context.Context, polls []models.Poll) error
}

// KVPollRepository 基于KVStore的投票仓库
type KVPollRepository struct {
	store  KVStore
	key    string
	logger *slog.Logger
}

// NewPollRepository 创建投票仓库
func NewPollRepository(store KVStore, logger *slog.Logger) *KVPollRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &KVPollRepository{store: store, key: PollsKey, logger: logger}
}

// Load 读取完整集合；键不存在时返回空集合，数据损坏时返回ErrMalformedData
func (r *KVPollRepository) Load(ctx context.Context) ([]models.Poll, error) {
	raw, found, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.key, err)
	}
	if !found || raw == "" {
		return []models.Poll{}, nil
	}

	var polls []models.Poll
	if err := json.Unmarshal([]byte(raw), &polls); err != nil {
		r.logger.Warn("投票数据格式错误", "key", r.key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if polls == nil {
		// JSON null
		polls = []models.Poll{}
	}
	return polls, nil
}

// Save 整体写回集合，不做部分写入
func (r *KVPollRepository) Save(ctx context.Context, polls []models.Poll) error {
	if polls == nil {
		polls = []models.Poll{}
	}
	data, err := json.Marshal(polls)
	if err != nil {
		return fmt.Errorf("encode polls: %w", err)
	}
	if err := r.store.Set(ctx, r.key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", r.key, err)
	}
	return nil
}
