package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	apperrors "github.com/mrpeppo47/server-scacchi/pkg/errors"
	"github.com/mrpeppo47/server-scacchi/pkg/logger"
)

// ErrRouterStopped Router 已停止，不再接受事件
var ErrRouterStopped = errors.New("router stopped")

// Transport 出站定址
//
// 所有方法都不可阻塞：送不出去的訊息直接丟棄。
type Transport interface {
	SendTo(connID string, ev Event)
	Broadcast(roomID string, ev Event)
	Join(roomID, connID string)
	Leave(roomID, connID string)
	Dissolve(roomID string)
}

// Dispatcher 入站事件的接收端
type Dispatcher interface {
	Dispatch(ev InboundEvent) error
}

// task 佇列中的工作：入站事件或在迴圈內執行的查詢
type task struct {
	event *InboundEvent
	query func(*Manager)
}

// Router 事件路由器
//
// 單一消費者佇列：所有入站事件（包含 disconnect）依序在同一個 goroutine
// 處理，Manager 與 Store 因此不需要鎖。同一房間的走步以出佇列順序套用。
//
//	hub readPump ─┐
//	hub readPump ─┼─> queue ──> Run() ──> Manager ──> Transport / Journal
//	HTTP /stats ──┘
type Router struct {
	manager   *Manager
	transport Transport
	journal   Journal
	logger    *slog.Logger
	queue     chan task
	done      chan struct{}
}

// NewRouter 創建路由器
func NewRouter(manager *Manager, transport Transport, journal Journal, queueSize int, logger *slog.Logger) *Router {
	if journal == nil {
		journal = NopJournal{}
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Router{
		manager:   manager,
		transport: transport,
		journal:   journal,
		logger:    logger,
		queue:     make(chan task, queueSize),
		done:      make(chan struct{}),
	}
}

// Run 處理佇列直到 ctx 取消
func (r *Router) Run(ctx context.Context) {
	defer close(r.done)

	r.logger.Info("事件路由器已啟動")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("事件路由器已停止")
			return
		case t := <-r.queue:
			r.process(ctx, t)
		}
	}
}

// Dispatch 將事件放入佇列
//
// 佇列滿時會等待；Router 停止後回傳 ErrRouterStopped。
func (r *Router) Dispatch(ev InboundEvent) error {
	select {
	case <-r.done:
		return ErrRouterStopped
	default:
	}

	select {
	case r.queue <- task{event: &ev}:
		return nil
	case <-r.done:
		return ErrRouterStopped
	}
}

// Stats 在事件迴圈內計算統計資訊
//
// 由於佇列先進先出，回傳時之前排入的事件都已處理完畢。
func (r *Router) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.Query(ctx, func(m *Manager) {
		stats = m.Stats()
	})
	return stats, err
}

// Query 在事件迴圈內執行唯讀查詢
func (r *Router) Query(ctx context.Context, fn func(*Manager)) error {
	finished := make(chan struct{})
	t := task{query: func(m *Manager) {
		defer close(finished)
		fn(m)
	}}

	select {
	case r.queue <- t:
	case <-r.done:
		return ErrRouterStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrRouterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) process(ctx context.Context, t task) {
	if t.query != nil {
		t.query(r.manager)
		return
	}
	r.handle(logger.WithConnID(ctx, t.event.ConnID), *t.event)
}

// handle 將事件名稱對應到 Manager 操作
func (r *Router) handle(ctx context.Context, ev InboundEvent) {
	switch ev.Name {
	case EventCreateRoom, EventJoinRoom:
		var req RoomRequest
		if err := decode(ev.Data, &req); err != nil || req.RoomID == "" {
			r.reject(ctx, ev, apperrors.ErrInvalidInput)
			return
		}
		var (
			res Result
			err error
		)
		if ev.Name == EventCreateRoom {
			res, err = r.manager.CreateRoom(ev.ConnID, req)
		} else {
			res, err = r.manager.JoinRoom(ev.ConnID, req)
		}
		if err != nil {
			r.reject(logger.WithRoomID(ctx, req.RoomID), ev, err)
			return
		}
		r.apply(ctx, res)

	case EventStartGame:
		var req RoomRef
		if err := decode(ev.Data, &req); err != nil {
			r.drop(ctx, ev, err)
			return
		}
		r.apply(ctx, r.manager.StartGame(ev.ConnID, req.RoomID))

	case EventMove:
		var req MoveRequest
		if err := decode(ev.Data, &req); err != nil {
			r.drop(ctx, ev, err)
			return
		}
		r.apply(ctx, r.manager.Move(ev.ConnID, req.RoomID, req.Move))

	case EventPartitaVinta:
		var req WinRequest
		if err := decode(ev.Data, &req); err != nil {
			r.drop(ctx, ev, err)
			return
		}
		r.apply(ctx, r.manager.Win(ev.ConnID, req, ev.Data))

	case EventDisconnect:
		r.apply(ctx, r.manager.Disconnect(ev.ConnID))

	default:
		r.logger.DebugContext(ctx, "收到未知事件", "event", ev.Name)
	}
}

// apply 依序套用指令，群組加入與廣播在同一個處理步驟內完成
func (r *Router) apply(ctx context.Context, res Result) {
	for _, in := range res.Out {
		switch in.Kind {
		case DeliverReply, DeliverTo:
			r.transport.SendTo(in.Target, in.Event)
		case DeliverRoom:
			r.transport.Broadcast(in.Target, in.Event)
		case JoinGroup:
			r.transport.Join(in.Target, in.ConnID)
		case LeaveGroup:
			r.transport.Leave(in.Target, in.ConnID)
		case DissolveGroup:
			r.transport.Dissolve(in.Target)
		}
	}

	for _, rec := range res.Journal {
		if err := r.journal.Publish(ctx, rec); err != nil {
			r.logger.WarnContext(ctx, "發布生命週期紀錄失敗",
				"type", rec.Type,
				"room_id", rec.RoomID,
				"error", err)
		}
	}
}

// reject 只回覆發起者；屬於正常使用流程，不以錯誤級別記錄
func (r *Router) reject(ctx context.Context, ev InboundEvent, err error) {
	r.logger.DebugContext(ctx, "請求被拒絕",
		"event", ev.Name,
		"code", apperrors.Code(err))
	r.transport.SendTo(ev.ConnID, Event{Type: EventError, Data: apperrors.ClientMessage(err)})
}

// drop 靜默操作的負載無法解析時直接丟棄
func (r *Router) drop(ctx context.Context, ev InboundEvent, err error) {
	r.logger.DebugContext(ctx, "無法解析事件負載", "event", ev.Name, "error", err)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperrors.ErrInvalidInput
	}
	return json.Unmarshal(data, v)
}
