package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"group-voting-backend/cache"
	"group-voting-backend/config"
	"group-voting-backend/database"
	"group-voting-backend/handlers"
	"group-voting-backend/repository"
	"group-voting-backend/routes"
	"group-voting-backend/service"
	"group-voting-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("加载配置失败", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

	// 初始化Redis连接，失败时降级运行
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.InitRedis(ctx, cfg.Redis)
		if err != nil {
			if cfg.Storage.Backend == config.BackendRedis {
				logger.Error("Redis存储后端不可用", "error", err)
				os.Exit(1)
			}
			logger.Warn("Redis初始化失败，跳过分布式锁和投票去重", "error", err)
			redisClient = nil
		} else {
			logger.Info("Redis连接初始化成功", "addr", cfg.Redis.Addr)
		}
	}

	// 选择存储后端
	var (
		store       repository.KVStore
		db          *gorm.DB
		storagePing handlers.Pinger
	)
	switch cfg.Storage.Backend {
	case config.BackendDatabase:
		db, err = database.InitDB(cfg.Database)
		if err != nil {
			logger.Error("无法初始化数据库", "error", err)
			os.Exit(1)
		}
		store = repository.NewGormStore(db)
		storagePing = func(context.Context) error { return database.Ping(db) }
	case config.BackendRedis:
		store = repository.NewRedisStore(redisClient, cfg.Storage.KeyPrefix)
		storagePing = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	default:
		store = repository.NewMemoryStore(nil)
	}
	logger.Info("存储后端已选择", "backend", cfg.Storage.Backend)

	var (
		repo      repository.PollRepository = repository.NewPollRepository(store, logger)
		guard     handlers.VoteGuard
		redisPing handlers.Pinger
	)
	if redisClient != nil {
		// 多实例部署时串行化整体写回
		repo = repository.NewLockedPollRepository(repo, cache.NewLockService(redisClient), logger)
		redisPing = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		if cfg.Vote.Dedup {
			guard = cache.NewVoteGuard(redisClient, 0)
		}
	}
	if cfg.Vote.Dedup && guard == nil {
		logger.Warn("投票去重需要Redis，已禁用")
	}

	// WebSocket Hub接收投票变更
	hub := websocket.NewHub(logger)

	pollService := service.NewPollService(repo, hub, logger, service.WithDateRangeCheck())
	if err := pollService.Load(ctx); err != nil {
		logger.Error("加载投票数据失败", "error", err)
		os.Exit(1)
	}

	pollHandler := handlers.NewPollHandler(pollService, guard, logger)
	deps := routes.Dependencies{
		Polls:      pollHandler,
		Groups:     handlers.NewGroupHandler(repository.NewGroupDirectory(store, logger)),
		Health:     handlers.NewHealthHandler(pollService, cfg.Storage.Backend, storagePing, redisPing),
		WebSocket:  websocket.NewHandler(hub, pollHandler.PollExists, logger),
		AdminRoles: cfg.Server.AdminRoles,
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimiter = handlers.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	// 设置路由并启动服务器
	router := routes.SetupRouter(deps)
	srv := routes.NewServer(cfg.Server.Port, router)
	serveErr := make(chan error, 1)
	srv.Start(logger, serveErr)

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		logger.Error("服务器启动失败", "error", err)
	}
	logger.Info("关闭服务器...")

	// 创建一个5秒超时的上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器强制关闭", "error", err)
	}

	// 关闭数据库和Redis连接
	database.CloseDB(db)
	cache.CloseRedis(redisClient)

	logger.Info("服务器优雅关闭")
}
