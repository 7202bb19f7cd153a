package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub WebSocket 連接中心
//
// 扮演連線登錄表與出站傳輸：
//   - conns：connID → Connection
//   - groups：roomID → connID 集合（房間廣播對象）
//
// 入站訊框交給 Dispatcher；連線結束時補送一個 disconnect 事件。
// 所有送出都是非阻塞的：連線緩衝區滿時丟棄訊息。
type Hub struct {
	cfg        WebSocketConfig
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	dispatcher Dispatcher

	conns  map[string]*Connection
	groups map[string]map[string]struct{}
	mu     sync.RWMutex
	closed bool
}

// Connection 一條 WebSocket 連線
type Connection struct {
	ID     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	rooms  map[string]struct{} // 所在群組，受 hub.mu 保護
	closed bool                // send 已關閉，受 hub.mu 保護
}

// NewHub 創建 WebSocket Hub
func NewHub(cfg WebSocketConfig, allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns:  make(map[string]*Connection),
		groups: make(map[string]map[string]struct{}),
	}
}

// SetDispatcher 設定入站事件的接收端，必須在 ServeWS 之前呼叫
func (hub *Hub) SetDispatcher(d Dispatcher) {
	hub.dispatcher = d
}

// originChecker 依允許清單檢查 Origin；清單含 "*" 或沒有 Origin 標頭時放行
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// ServeWS 處理 WebSocket 連接
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	hub.mu.RLock()
	closed := hub.closed
	hub.mu.RUnlock()
	if closed || hub.dispatcher == nil {
		http.Error(w, "服務不可用", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("升級 WebSocket 失敗", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &Connection{
		ID:    uuid.NewString(),
		conn:  conn,
		send:  make(chan []byte, hub.cfg.SendBuffer),
		hub:   hub,
		rooms: make(map[string]struct{}),
	}

	if !hub.register(c) {
		_ = conn.Close()
		return
	}

	// 第一個訊框告知客戶端自己的連線 ID
	hub.SendTo(c.ID, Event{Type: EventConnected, Data: Connected{ID: c.ID}})

	go c.writePump()
	go c.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", c.ID, "remote", r.RemoteAddr)
}

func (hub *Hub) register(c *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.closed {
		return false
	}
	hub.conns[c.ID] = c
	return true
}

// unregister 移除連線與其所有群組成員資格，回傳是否由此次呼叫移除
func (hub *Hub) unregister(c *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	actual, exists := hub.conns[c.ID]
	if !exists || actual != c {
		return false
	}
	delete(hub.conns, c.ID)

	for roomID := range c.rooms {
		hub.leaveLocked(roomID, c.ID)
	}
	c.closeSend()
	return true
}

// SendTo 送給單一連線
func (hub *Hub) SendTo(connID string, ev Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "event", ev.Type, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if c, ok := hub.conns[connID]; ok {
		c.enqueue(message)
	}
}

// Broadcast 廣播到房間群組
func (hub *Hub) Broadcast(roomID string, ev Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "event", ev.Type, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for connID := range hub.groups[roomID] {
		if c, ok := hub.conns[connID]; ok {
			c.enqueue(message)
		}
	}
}

// Join 將連線加入房間群組；連線已不存在時忽略
func (hub *Hub) Join(roomID, connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	c, ok := hub.conns[connID]
	if !ok {
		return
	}
	if hub.groups[roomID] == nil {
		hub.groups[roomID] = make(map[string]struct{})
	}
	hub.groups[roomID][connID] = struct{}{}
	c.rooms[roomID] = struct{}{}
}

// Leave 將連線移出房間群組
func (hub *Hub) Leave(roomID, connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.leaveLocked(roomID, connID)
}

func (hub *Hub) leaveLocked(roomID, connID string) {
	if members, ok := hub.groups[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(hub.groups, roomID)
		}
	}
	if c, ok := hub.conns[connID]; ok {
		delete(c.rooms, roomID)
	}
}

// Dissolve 解散房間群組
func (hub *Hub) Dissolve(roomID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for connID := range hub.groups[roomID] {
		if c, ok := hub.conns[connID]; ok {
			delete(c.rooms, roomID)
		}
	}
	delete(hub.groups, roomID)
}

// Members 房間群組的成員數
func (hub *Hub) Members(roomID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.groups[roomID])
}

// ConnectionCount 連線數
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}

// Stop 關閉所有連線並拒絕新連線
func (hub *Hub) Stop() {
	hub.mu.Lock()
	hub.closed = true
	conns := make([]*Connection, 0, len(hub.conns))
	for _, c := range hub.conns {
		c.closeSend()
		conns = append(conns, c)
	}
	hub.mu.Unlock()

	// writePump 收到關閉的通道後會送出 close frame；逾時則直接關閉
	for _, c := range conns {
		c.closeAfter(hub.cfg.WriteWait)
	}

	hub.logger.Info("WebSocket Hub 已停止", "connections", len(conns))
}

// enqueue 非阻塞寫入；呼叫者必須持有 hub.mu（讀鎖即可）
func (c *Connection) enqueue(message []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		c.hub.logger.Warn("連接緩衝區滿，丟棄訊息", "conn_id", c.ID)
	}
}

// closeSend 呼叫者必須持有 hub.mu 寫鎖
func (c *Connection) closeSend() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Connection) closeAfter(d time.Duration) {
	time.AfterFunc(d, func() {
		_ = c.conn.Close()
	})
}

// readPump 讀取客戶端訊框並交給 Dispatcher
//
// 心跳：讀取期限為 PongWait，每次收到 Pong 重置；writePump 每 PingPeriod 送出 Ping。
// 結束時註銷連線並送出 disconnect 事件，確保房間狀態被清理。
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
		if err := c.hub.dispatcher.Dispatch(InboundEvent{ConnID: c.ID, Name: EventDisconnect}); err != nil &&
			!errors.Is(err, ErrRouterStopped) {
			c.hub.logger.Error("送出 disconnect 事件失敗", "conn_id", c.ID, "error", err)
		}
		c.hub.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("WebSocket 讀取錯誤", "conn_id", c.ID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleMessage(message)
	}
}

// handleMessage 解碼訊框並交給 Dispatcher
func (c *Connection) handleMessage(message []byte) {
	var frame Frame
	if err := json.Unmarshal(message, &frame); err != nil || frame.Type == "" {
		c.hub.logger.Debug("無法解析客戶端訊框", "conn_id", c.ID, "error", err)
		return
	}
	// disconnect 只能由傳輸層產生
	if frame.Type == EventDisconnect {
		return
	}

	if err := c.hub.dispatcher.Dispatch(InboundEvent{ConnID: c.ID, Name: frame.Type, Data: frame.Data}); err != nil {
		c.hub.logger.Warn("事件無法排入佇列", "conn_id", c.ID, "event", frame.Type, "error", err)
	}
}

// writePump 將通道中的訊息寫入連線，並定期送出 Ping
func (c *Connection) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("發送訊息失敗", "conn_id", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
