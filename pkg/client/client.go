// Package client 提供連接對局伺服器的 WebSocket 客戶端
//
// 每個 Client 是一條獨立的連線，由呼叫者建立與關閉：
//
//	c, err := client.Dial(ctx, "ws://localhost:3000/ws")
//	c.On("room_created", func(data json.RawMessage) { ... })
//	c.Emit("create_room", map[string]string{"roomId": "r1", "nome": "Anna"})
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed 連線已關閉
var ErrClosed = errors.New("client closed")

const writeWait = 10 * time.Second

// HandlerFunc 事件回呼，data 為原始 JSON（可能為空）
type HandlerFunc func(data json.RawMessage)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client 一條對局伺服器連線
type Client struct {
	conn *websocket.Conn
	id   string

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]HandlerFunc

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial 建立連線並等待伺服器分配的連線 ID
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var first frame
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read connected frame: %w", err)
	}
	if first.Event != "connected" {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first event %q", first.Event)
	}

	var hello struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(first.Data, &hello); err != nil || hello.ID == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("invalid connected payload: %s", first.Data)
	}

	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:     conn,
		id:       hello.ID,
		handlers: make(map[string][]HandlerFunc),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ID 伺服器分配的連線 ID
func (c *Client) ID() string {
	return c.id
}

// On 註冊事件回呼，同一事件可註冊多個，依註冊順序呼叫
func (c *Client) On(event string, fn HandlerFunc) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

// Emit 送出事件，data 為 nil 時省略
func (c *Client) Emit(event string, data any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	msg := frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
		msg.Data = raw
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Close 送出 close frame 並等待讀取迴圈結束
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
	})

	select {
	case <-c.done:
	case <-time.After(writeWait):
		_ = c.conn.Close()
		<-c.done
	}
	return nil
}

// Done 連線結束時關閉
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err 讀取迴圈結束的原因；正常關閉時為 nil
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	defer func() {
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		var msg frame
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
			}
			return
		}

		c.handlersMu.RLock()
		handlers := c.handlers[msg.Event]
		c.handlersMu.RUnlock()

		for _, fn := range handlers {
			fn(msg.Data)
		}
	}
}
