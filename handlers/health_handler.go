package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"group-voting-backend/service"

	"github.com/gin-gonic/gin"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Uptime         string    `json:"uptime"`
	StartTime      time.Time `json:"start_time"`
	CurrentTime    time.Time `json:"current_time"`
	GoVersion      string    `json:"go_version"`
	NumGoroutine   int       `json:"num_goroutine"`
	NumCPU         int       `json:"num_cpu"`
	StorageBackend string    `json:"storage_backend"`
	StorageStatus  string    `json:"storage_status"`
	RedisStatus    string    `json:"redis_status"`
}

// Pinger 检查依赖是否可用，为nil表示未启用
type Pinger func(ctx context.Context) error

var version = "0.1.0" // 应用版本，可通过构建参数注入

// HealthHandler 健康检查与指标
type HealthHandler struct {
	service   service.PollService
	backend   string
	storage   Pinger
	redis     Pinger
	startTime time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(svc service.PollService, backend string, storage, redis Pinger) *HealthHandler {
	return &HealthHandler{
		service:   svc,
		backend:   backend,
		storage:   storage,
		redis:     redis,
		startTime: time.Now(),
	}
}

// HealthCheck 提供基本健康检查端点
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	info := SystemInfo{
		Status:         "ok",
		Version:        version,
		Uptime:         time.Since(h.startTime).String(),
		StartTime:      h.startTime,
		CurrentTime:    time.Now(),
		GoVersion:      runtime.Version(),
		NumGoroutine:   runtime.NumGoroutine(),
		NumCPU:         runtime.NumCPU(),
		StorageBackend: h.backend,
		StorageStatus:  pingStatus(ctx, h.storage),
		RedisStatus:    pingStatus(ctx, h.redis),
	}
	// 存储不可用时内存状态仍然可用，只标记为降级
	if info.StorageStatus == "error" {
		info.Status = "degraded"
	}

	c.JSON(http.StatusOK, info)
}

// MetricsHandler 返回Prometheus文本格式的投票指标
func (h *HealthHandler) MetricsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := h.service.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect metrics"})
		return
	}
	polls, err := h.service.ListPolls(ctx, service.PollFilter{ShowAll: true})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect metrics"})
		return
	}

	var b strings.Builder
	writeMetric(&b, "polls_total", "gauge", "The number of polls", stats.TotalPolls)
	writeMetric(&b, "polls_active", "gauge", "The number of active polls", stats.ActivePolls)
	writeMetric(&b, "polls_completed", "gauge", "The number of completed polls", stats.CompletedPolls)
	writeMetric(&b, "votes_total", "gauge", "The total number of votes across all polls", stats.TotalVotes)
	writeMetric(&b, "eligible_voters_total", "gauge", "The total number of eligible voters", stats.EligibleVoters)
	writeMetric(&b, "participation_rate_percent", "gauge", "Votes per eligible voter in percent", stats.ParticipationRate)

	fmt.Fprintf(&b, "# HELP poll_votes_total The total number of votes per poll\n# TYPE poll_votes_total gauge\n")
	for _, p := range polls {
		fmt.Fprintf(&b, "poll_votes_total{poll_id=%q,status=%q} %d\n", p.ID, p.Status, p.TotalVotes)
	}

	writeMetric(&b, "system_goroutines", "gauge", "The number of goroutines", runtime.NumGoroutine())

	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(b.String()))
}

func writeMetric(b *strings.Builder, name, kind, help string, value interface{}) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n", name, help, name, kind, name, value)
}

func pingStatus(ctx context.Context, ping Pinger) string {
	if ping == nil {
		return "disabled"
	}
	if err := ping(ctx); err != nil {
		return "error"
	}
	return "ok"
}
