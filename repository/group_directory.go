package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"group-voting-backend/models"
)

// GroupDirectory 只读的群组目录，用于填充群组筛选下拉框。
// 投票引擎不校验投票的群组名是否存在于目录中。
type GroupDirectory struct {
	store  KVStore
	logger *slog.Logger
}

// NewGroupDirectory 创建群组目录
func NewGroupDirectory(store KVStore, logger *slog.Logger) *GroupDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupDirectory{store: store, logger: logger}
}

// Groups 读取全部群组，读取失败或格式错误时返回空列表
func (d *GroupDirectory) Groups(ctx context.Context) []models.Group {
	raw, found, err := d.store.Get(ctx, GroupsKey)
	if err != nil {
		d.logger.Warn("读取群组目录失败", "error", err)
		return []models.Group{}
	}
	if !found || raw == "" {
		return []models.Group{}
	}

	var groups []models.Group
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		d.logger.Warn("群组目录格式错误", "error", err)
		return []models.Group{}
	}
	if groups == nil {
		return []models.Group{}
	}
	return groups
}

// Names 返回群组名称，去掉空名
func (d *GroupDirectory) Names(ctx context.Context) []string {
	groups := d.Groups(ctx)
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		if name := strings.TrimSpace(g.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
