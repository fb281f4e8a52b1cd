package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub WebSocket 连接集合，向全部在线客户端广播报警
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub 创建 WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleWS HTTP 升级入口（挂到 /ws/alerts）
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.logger.Info("WebSocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	// 读循环只用于发现断连，收到的消息全部丢弃
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("WebSocket read error", zap.Error(err))
				}
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast 向全部客户端推送，写超时或写失败的连接直接摘除
// deadline 约束每个连接的写操作，阻塞的客户端不能拖住分发协程
func (h *Hub) Broadcast(data []byte, deadline time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(deadline)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("WebSocket write failed, removing client",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(err))
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// ClientCount 当前在线客户端数
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close 关闭全部连接
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.WriteMessage(websocket.CloseMessage, []byte{})
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

// WebSocketSink 通过 hub 广播报警
type WebSocketSink struct {
	hub *Hub
}

// NewWebSocketSink 创建 WebSocket sink
func NewWebSocketSink(hub *Hub) *WebSocketSink {
	return &WebSocketSink{hub: hub}
}

func (s *WebSocketSink) Name() string {
	return "websocket"
}

func (s *WebSocketSink) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(2 * time.Second)
	}
	s.hub.Broadcast(data, deadline)
	return nil
}
