package testutils

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrpeppo47/server-scacchi/internal"
	"github.com/mrpeppo47/server-scacchi/pkg/client"
	"github.com/mrpeppo47/server-scacchi/pkg/logger"
	"github.com/stretchr/testify/require"
)

// DefaultTestConfig 返回測試用的預設配置，心跳間隔縮短
func DefaultTestConfig() *internal.Config {
	cfg := internal.DefaultConfig()

	cfg.Server.Port = 3000
	cfg.WebSocket.PingPeriod = 500 * time.Millisecond
	cfg.WebSocket.PongWait = time.Second
	cfg.WebSocket.WriteWait = time.Second
	cfg.Match.QueueSize = 256

	cfg.Log.Level = "error"
	cfg.Log.Format = "text"

	return cfg
}

// TestLogger 測試用日誌，只輸出錯誤
func TestLogger() *slog.Logger {
	return logger.NewWithWriter(io.Discard, "error", "text")
}

// RecordingJournal 記錄所有發布的生命週期紀錄
type RecordingJournal struct {
	mu     sync.Mutex
	events []internal.MatchEvent
	Err    error // 非 nil 時 Publish 回傳此錯誤
}

// Publish 實作 internal.Journal
func (j *RecordingJournal) Publish(_ context.Context, ev internal.MatchEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Err != nil {
		return j.Err
	}
	j.events = append(j.events, ev)
	return nil
}

// Close 實作 internal.Journal
func (j *RecordingJournal) Close() error { return nil }

// Events 已記錄紀錄的副本
func (j *RecordingJournal) Events() []internal.MatchEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]internal.MatchEvent(nil), j.events...)
}

// Types 已記錄紀錄的類型，依發布順序
func (j *RecordingJournal) Types() []internal.MatchEventType {
	j.mu.Lock()
	defer j.mu.Unlock()
	types := make([]internal.MatchEventType, 0, len(j.events))
	for _, ev := range j.events {
		types = append(types, ev.Type)
	}
	return types
}

// TestServer 完整組裝的測試伺服器：Hub + Router + Handler
type TestServer struct {
	HTTP    *httptest.Server
	Hub     *internal.Hub
	Router  *internal.Router
	Journal *RecordingJournal
	WSURL   string

	cancel context.CancelFunc
	done   chan struct{}
}

// StartServer 啟動測試伺服器，測試結束時自動關閉
func StartServer(t testing.TB, cfg *internal.Config, opts ...internal.Option) *TestServer {
	t.Helper()

	log := TestLogger()
	journal := &RecordingJournal{}
	manager := internal.NewManager(log, opts...)
	hub := internal.NewHub(cfg.WebSocket, cfg.Server.AllowedOrigins, log)
	router := internal.NewRouter(manager, hub, journal, cfg.Match.QueueSize, log)
	hub.SetDispatcher(router)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		router.Run(ctx)
	}()

	srv := httptest.NewServer(internal.NewHandler(router, hub, log).Routes())

	ts := &TestServer{
		HTTP:    srv,
		Hub:     hub,
		Router:  router,
		Journal: journal,
		WSURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		cancel:  cancel,
		done:    done,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close 關閉伺服器
func (ts *TestServer) Close() {
	ts.Hub.Stop()
	ts.HTTP.Close()
	ts.cancel()
	<-ts.done
}

// Barrier 等待 Router 處理完目前佇列中的所有事件
func (ts *TestServer) Barrier(t testing.TB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.Router.Query(ctx, func(*internal.Manager) {}))
}

// Inbox 記錄客戶端收到的訊框
type Inbox struct {
	ch chan Received
}

// Received 一個收到的訊框
type Received struct {
	Event string
	Data  json.RawMessage
}

// DialClient 連接測試伺服器並記錄指定事件
func DialClient(t testing.TB, ts *TestServer, events ...string) (*client.Client, *Inbox) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, ts.WSURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	inbox := &Inbox{ch: make(chan Received, 64)}
	for _, name := range events {
		c.On(name, func(data json.RawMessage) {
			inbox.ch <- Received{Event: name, Data: data}
		})
	}
	return c, inbox
}

// Next 等待下一個訊框
func (in *Inbox) Next(t testing.TB, timeout time.Duration) Received {
	t.Helper()
	select {
	case r := <-in.ch:
		return r
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for event")
		return Received{}
	}
}

// Expect 等待下一個訊框並檢查事件名稱
func (in *Inbox) Expect(t testing.TB, event string, timeout time.Duration) json.RawMessage {
	t.Helper()
	r := in.Next(t, timeout)
	require.Equal(t, event, r.Event, "unexpected event with data %s", r.Data)
	return r.Data
}

// ExpectNone 在指定時間內不應收到任何訊框
func (in *Inbox) ExpectNone(t testing.TB, wait time.Duration) {
	t.Helper()
	select {
	case r := <-in.ch:
		t.Fatalf("unexpected event %q with data %s", r.Event, r.Data)
	case <-time.After(wait):
	}
}

// MakeHTTPRequest 執行 HTTP 請求的輔助函數
func MakeHTTPRequest(t testing.TB, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	return recorder
}

// ParseJSONResponse 解析 JSON 響應
func ParseJSONResponse(t testing.TB, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()

	err := json.NewDecoder(recorder.Body).Decode(target)
	require.NoError(t, err, "failed to parse JSON response")
}

// WaitForCondition 等待條件滿足
func WaitForCondition(t testing.TB, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for condition: %s", message)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// RunConcurrently 並發執行測試函數
func RunConcurrently(t testing.TB, concurrency int, iterations int, fn func(workerID, iteration int)) {
	t.Helper()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				fn(workerID, j)
			}
		}(i)
	}
	wg.Wait()
}
