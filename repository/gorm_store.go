package repository

import (
	"context"
	"errors"
	"time"

	"group-voting-backend/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于数据库kv_entries表的存储，MySQL和SQLite均可
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建数据库存储，调用前需已完成迁移
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry database.KVEntry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set 存在则覆盖
func (s *GormStore) Set(ctx context.Context, key string, value string) error {
	entry := database.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}
