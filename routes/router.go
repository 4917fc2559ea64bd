package routes

import (
	"log/slog"
	"net/http"
	"time"

	"group-voting-backend/handlers"
	"group-voting-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// Dependencies 路由用到的处理器和中间件
type Dependencies struct {
	Polls       *handlers.PollHandler
	Groups      *handlers.GroupHandler
	Health      *handlers.HealthHandler
	WebSocket   *websocket.Handler
	RateLimiter *handlers.IPRateLimiter // 为nil时不限流
	AdminRoles  []string
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(deps Dependencies) *gin.Engine {
	// 创建Gin路由器
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // 生产环境中应限制为前端域名
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.HeaderUserName, handlers.HeaderUserRole, handlers.HeaderUserID},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 定义API路由
	api := router.Group("/api")
	api.Use(handlers.SessionMiddleware(deps.AdminRoles))
	{
		// 健康检查和指标端点
		api.GET("/health", deps.Health.HealthCheck)
		api.GET("/status", deps.Health.SystemStatus)
		api.GET("/metrics", deps.Health.MetricsHandler)

		// 群组目录
		api.GET("/groups", deps.Groups.GetGroups)

		// 投票端点
		polls := api.Group("/polls")
		{
			polls.GET("", deps.Polls.GetPolls)
			polls.GET("/stats", deps.Polls.GetStats)
			polls.GET("/:id", deps.Polls.GetPoll)

			vote := []gin.HandlerFunc{}
			if deps.RateLimiter != nil {
				vote = append(vote, deps.RateLimiter.Middleware())
			}
			polls.POST("/:id/vote", append(vote, deps.Polls.SubmitVote)...)

			// 实时更新
			if deps.WebSocket != nil {
				polls.GET("/:id/ws", deps.WebSocket.HandleWebSocketConnection)
			}
		}

		// 管理操作
		admin := api.Group("/polls", handlers.RequireAdmin())
		{
			admin.POST("", deps.Polls.CreatePoll)
			admin.PUT("/:id", deps.Polls.UpdatePoll)
			admin.POST("/:id/close", deps.Polls.ClosePoll)
			admin.POST("/:id/cancel", deps.Polls.CancelPoll)
			admin.DELETE("/:id", deps.Polls.DeletePoll)
		}
	}

	return router
}

// NewServer 创建HTTP服务器
func NewServer(port string, router *gin.Engine) *Server {
	return &Server{
		&http.Server{
			Addr:              ":" + port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start 在单独的goroutine中启动服务器，监听失败时写入errCh
func (s *Server) Start(logger *slog.Logger, errCh chan<- error) {
	go func() {
		logger.Info("服务器启动", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
}
