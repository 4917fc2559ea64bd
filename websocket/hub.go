package websocket

import (
	"log/slog"
	"sync"

	"group-voting-backend/models"
)

// Client 代表一个WebSocket连接客户端
type Client struct {
	// 订阅的投票ID
	PollID string

	// WebSocket连接，测试中可为nil
	conn connection

	// 消息发送通道
	send chan []byte
}

// NewClient 创建订阅指定投票的客户端
func NewClient(pollID string, buffer int) *Client {
	return &Client{PollID: pollID, send: make(chan []byte, buffer)}
}

// Messages 返回客户端的待发送消息通道
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Hub 维护活跃的客户端集合并向客户端广播消息
type Hub struct {
	// 已注册的客户端，按投票ID分组
	clients map[string]map[*Client]bool

	// 互斥锁保护clients map
	mu sync.RWMutex

	logger *slog.Logger
}

// NewHub 创建一个新的Hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]map[*Client]bool),
		logger:  logger,
	}
}

// RegisterClient 注册客户端到Hub
func (h *Hub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.PollID]; !ok {
		h.clients[client.PollID] = make(map[*Client]bool)
	}
	h.clients[client.PollID][client] = true
	h.logger.Debug("客户端已订阅", "poll_id", client.PollID, "clients", len(h.clients[client.PollID]))
}

// UnregisterClient 从Hub中注销客户端并关闭其发送通道
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	subs, ok := h.clients[client.PollID]
	if !ok {
		return
	}
	if _, ok := subs[client]; !ok {
		return
	}
	delete(subs, client)
	close(client.send)
	if len(subs) == 0 {
		delete(h.clients, client.PollID)
	}
}

// ClientCount 返回订阅某个投票的客户端数量
func (h *Hub) ClientCount(pollID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[pollID])
}

// BroadcastToPoll 向特定投票的所有订阅客户端广播消息。
// 发送缓冲区已满的客户端会被断开。
func (h *Hub) BroadcastToPoll(pollID string, message *models.WebSocketMessage) {
	payload, err := message.ToJSON()
	if err != nil {
		h.logger.Error("消息序列化失败", "poll_id", pollID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.clients[pollID] {
		select {
		case client.send <- payload:
			sent++
		default:
			h.removeLocked(client)
		}
	}
	if sent > 0 {
		h.logger.Debug("广播投票更新", "poll_id", pollID, "type", message.Type, "clients", sent)
	}
}
