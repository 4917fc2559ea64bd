package database

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"group-voting-backend/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// KVEntry 键值表的一行，投票集合和群组目录各占一行
type KVEntry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:191"`
	Value     string    `gorm:"type:longtext;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName 固定表名
func (KVEntry) TableName() string {
	return "kv_entries"
}

// InitDB 初始化数据库连接并迁移
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	// 配置GORM
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  logger.Warn, // 日志级别
			IgnoreRecordNotFoundError: true,        // 忽略ErrRecordNotFound错误
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		slog.Info("使用MySQL数据库", "host", cfg.Host, "name", cfg.Name)
		dialector = mysql.Open(cfg.MySQLDSN())
	case "sqlite":
		slog.Info("使用SQLite数据库", "dsn", cfg.DSN)
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	slog.Info("数据库连接和迁移成功")
	return db, nil
}

// Migrate 自动迁移模型
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}
	return nil
}

// CloseDB 关闭数据库连接
func CloseDB(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("获取数据库连接失败", "error", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		slog.Error("关闭数据库连接失败", "error", err)
		return
	}

	slog.Info("数据库连接已关闭")
}

// Ping 检查数据库连接
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
