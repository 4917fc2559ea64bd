package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"group-voting-backend/cache"
	"group-voting-backend/repository"
	"group-voting-backend/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// memoryGuard 进程内的投票去重
type memoryGuard struct {
	mu     sync.Mutex
	voters map[string]bool
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{voters: make(map[string]bool)}
}

func (g *memoryGuard) Claim(ctx context.Context, pollID, voterID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := pollID + "|" + voterID
	if g.voters[key] {
		return cache.ErrAlreadyVoted
	}
	g.voters[key] = true
	return nil
}

func (g *memoryGuard) Release(ctx context.Context, pollID, voterID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.voters, pollID+"|"+voterID)
	return nil
}

type testEnv struct {
	router  *gin.Engine
	store   *repository.MemoryStore
	service *service.PollServiceImpl
}

type envOptions struct {
	guard   VoteGuard
	limiter *IPRateLimiter
	seed    map[string]string
}

// SetupTestEnvironment 使用内存存储搭建路由
func SetupTestEnvironment(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore(opts.seed)
	svc := service.NewPollService(repository.NewPollRepository(store, nil), nil, nil,
		service.WithClock(func() time.Time { return testNow }),
		service.WithDateRangeCheck())
	require.NoError(t, svc.Load(context.Background()))

	polls := NewPollHandler(svc, opts.guard, nil)
	groups := NewGroupHandler(repository.NewGroupDirectory(store, nil))
	health := NewHealthHandler(svc, "memory", func(context.Context) error { return nil }, nil)

	router := gin.New()
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Type", HeaderUserName, HeaderUserRole, HeaderUserID}
	router.Use(cors.New(config))

	api := router.Group("/api", SessionMiddleware([]string{"admin", "group-admin"}))
	{
		api.GET("/health", health.HealthCheck)
		api.GET("/status", health.SystemStatus)
		api.GET("/metrics", health.MetricsHandler)
		api.GET("/groups", groups.GetGroups)

		api.GET("/polls", polls.GetPolls)
		api.GET("/polls/stats", polls.GetStats)
		api.GET("/polls/:id", polls.GetPoll)
		vote := []gin.HandlerFunc{}
		if opts.limiter != nil {
			vote = append(vote, opts.limiter.Middleware())
		}
		api.POST("/polls/:id/vote", append(vote, polls.SubmitVote)...)

		admin := api.Group("/polls", RequireAdmin())
		admin.POST("", polls.CreatePoll)
		admin.PUT("/:id", polls.UpdatePoll)
		admin.POST("/:id/close", polls.ClosePoll)
		admin.POST("/:id/cancel", polls.CancelPoll)
		admin.DELETE("/:id", polls.DeletePoll)
	}

	return &testEnv{router: router, store: store, service: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
