package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// 存储后端
const (
	BackendDatabase = "database"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config 服务配置
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Vote      VoteConfig
	LogLevel  slog.Level
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port       string
	GinMode    string
	AdminRoles []string
}

// StorageConfig 选择投票集合的持久化后端
type StorageConfig struct {
	Backend   string
	KeyPrefix string // 仅Redis后端使用
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string // sqlite 或 mysql
	DSN      string // 设置后优先使用
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// RedisConfig Redis连接配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// RateLimitConfig 投票接口限流配置
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// VoteConfig 投票去重策略
type VoteConfig struct {
	Dedup bool
}

// MySQLDSN 构建MySQL连接串，已设置DSN时直接返回
func (c DatabaseConfig) MySQLDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Load 从环境变量（以及可选的config.yaml）读取配置
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8090")
	v.SetDefault("gin.mode", "release")
	v.SetDefault("admin.roles", "admin,group-admin")

	v.SetDefault("storage.backend", BackendDatabase)
	v.SetDefault("storage.prefix", "")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.user", "voteuser")
	v.SetDefault("db.password", "votepassword")
	v.SetDefault("db.host", "mysql")
	v.SetDefault("db.port", "3306")
	v.SetDefault("db.name", "votingdb")

	v.SetDefault("redis.addr", "localhost:16379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("vote.dedup", false)
	v.SetDefault("log.level", "info")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:       v.GetString("server.port"),
			GinMode:    v.GetString("gin.mode"),
			AdminRoles: splitList(v.GetString("admin.roles")),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(v.GetString("storage.backend")),
			KeyPrefix: v.GetString("storage.prefix"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("db.driver")),
			DSN:      v.GetString("db.dsn"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Host:     v.GetString("db.host"),
			Port:     v.GetString("db.port"),
			Name:     v.GetString("db.name"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Enabled:  v.GetBool("redis.enabled"),
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("rate_limit.enabled"),
			RPS:     v.GetFloat64("rate_limit.rps"),
			Burst:   v.GetInt("rate_limit.burst"),
		},
		Vote: VoteConfig{
			Dedup: v.GetBool("vote.dedup"),
		},
	}

	switch cfg.Storage.Backend {
	case BackendDatabase, BackendRedis, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.DSN == "" {
			cfg.Database.DSN = "group_voting.db"
		}
	case "mysql":
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	if cfg.Storage.Backend == BackendRedis && !cfg.Redis.Enabled {
		return nil, fmt.Errorf("storage backend redis requires REDIS_ENABLED")
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0) {
		return nil, fmt.Errorf("rate limit rps and burst must be positive")
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
