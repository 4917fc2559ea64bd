package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 管理面板与API不同源，允许所有跨域请求
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// connection 是Client用到的*websocket.Conn方法
type connection interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// PollExistsFunc 判断投票是否存在
type PollExistsFunc func(c *gin.Context, pollID string) bool

// Handler WebSocket处理器
type Handler struct {
	hub    *Hub
	exists PollExistsFunc
	logger *slog.Logger
}

// NewHandler 创建WebSocket处理器
func NewHandler(hub *Hub, exists PollExistsFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, exists: exists, logger: logger}
}

// HandleWebSocketConnection 处理WebSocket连接请求
func (h *Handler) HandleWebSocketConnection(c *gin.Context) {
	pollID := c.Param("id")
	if h.exists != nil && !h.exists(c, pollID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}

	// 升级HTTP连接为WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket升级失败", "error", err)
		return
	}

	client := NewClient(pollID, 256)
	client.conn = conn

	h.hub.RegisterClient(client)

	// 启动客户端goroutine
	go h.writePump(client)
	go h.readPump(client)

	h.logger.Info("WebSocket连接已建立", "poll_id", pollID)
}

// readPump 从WebSocket连接读取消息，只用于检测断开
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("读取WebSocket消息失败", "poll_id", client.PollID, "error", err)
			}
			break
		}
	}
}

// writePump 向WebSocket连接发送消息
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
