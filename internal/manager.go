package internal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"time"

	apperrors "github.com/mrpeppo47/server-scacchi/pkg/errors"
)

// Result 一次操作的產出：依序套用的出站指令，以及要發布的生命週期紀錄
type Result struct {
	Out     []Instruction
	Journal []MatchEvent
}

// Option Manager 選項
type Option func(*Manager)

// WithMembershipCheck start_game / move 是否要求發送者在房間內
func WithMembershipCheck(enabled bool) Option {
	return func(m *Manager) {
		m.requireMembership = enabled
	}
}

// WithClock 替換時間來源，測試用
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager 房間生命週期管理器
//
// 每個操作都是「讀取 → 檢查 → 寫入」並在回傳前完成，
// 拒絕的請求不會留下任何部分修改。Manager 不做任何 I/O，
// 出站訊息以 Result 交回 Router 處理。
//
// Manager 不是併發安全的，只能由 Router 的事件迴圈呼叫。
type Manager struct {
	store             *Store
	logger            *slog.Logger
	requireMembership bool
	now               func() time.Time
}

// NewManager 創建房間管理器
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  NewStore(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom 創建房間，發起者成為唯一玩家（bianco）
func (m *Manager) CreateRoom(connID string, req RoomRequest) (Result, error) {
	if req.RoomID == "" {
		return Result{}, apperrors.ErrInvalidInput.WithDetails("roomId mancante")
	}
	if _, exists := m.store.Get(req.RoomID); exists {
		return Result{}, apperrors.ErrRoomExists
	}

	creator := &Player{ConnID: connID, Nome: req.Nome, Foto: req.Foto}
	room := NewRoom(req.RoomID, creator, req.Modalita, m.now())
	if err := m.store.Insert(room); err != nil {
		return Result{}, err
	}

	m.logger.Info("房間已創建",
		"room_id", room.ID,
		"conn_id", connID,
		"nome", req.Nome,
		"modalita", room.Mode)

	return Result{
		Out: []Instruction{
			joinGroup(room.ID, connID),
			reply(connID, Event{Type: EventRoomCreated, Data: RoomCreated{
				RoomID:   room.ID,
				Nome:     req.Nome,
				Foto:     req.Foto,
				Modalita: req.Modalita,
			}}),
		},
		Journal: []MatchEvent{m.record(MatchRoomCreated, room)},
	}, nil
}

// JoinRoom 加入房間
//
// 第二位玩家入座時房間轉為 active，兩位玩家收到不同格式的通知：
//   - 第一位：opponent_joined，含對手資訊與完整對局描述
//   - 第二位：opponent_join，只含房主的顯示資訊
//
// 加入者的 modalita 會被忽略，以房間創建時的模式為準。
// 已在房間內的連線再次加入時只重新加入群組，不會佔用第二個座位。
func (m *Manager) JoinRoom(connID string, req RoomRequest) (Result, error) {
	if req.RoomID == "" {
		return Result{}, apperrors.ErrInvalidInput.WithDetails("roomId mancante")
	}
	room, exists := m.store.Get(req.RoomID)
	if !exists {
		return Result{}, apperrors.ErrRoomNotFound
	}
	if room.HasPlayer(connID) {
		m.logger.Debug("連線已在房間內，忽略重複加入", "room_id", room.ID, "conn_id", connID)
		return Result{Out: []Instruction{joinGroup(room.ID, connID)}}, nil
	}
	if room.IsFull() {
		return Result{}, apperrors.ErrRoomFull
	}

	if err := room.AddPlayer(&Player{ConnID: connID, Nome: req.Nome, Foto: req.Foto}, m.now()); err != nil {
		return Result{}, err
	}
	m.store.Seat(connID, room.ID)

	m.logger.Info("玩家加入房間",
		"room_id", room.ID,
		"conn_id", connID,
		"nome", req.Nome,
		"players", len(room.Players))

	res := Result{Out: []Instruction{joinGroup(room.ID, connID)}}
	if room.State() != StateActive {
		return res, nil
	}

	first, second := room.Players[0], room.Players[1]
	partita := Partita{
		RoomID: room.ID,
		Players: []SeatedPlayer{
			seated(first, TeamAt(0)),
			seated(second, TeamAt(1)),
		},
		Modalita: room.Mode,
	}

	res.Out = append(res.Out,
		sendTo(first.ConnID, Event{Type: EventOpponentJoined, Data: OpponentJoined{
			Nome:     second.Nome,
			Foto:     second.Foto,
			Creatore: false,
			ID:       room.ID,
			Partita:  partita,
		}}),
		sendTo(second.ConnID, Event{Type: EventOpponentJoin, Data: OpponentJoin{
			ID:   room.ID,
			Nome: first.Nome,
			Foto: first.Foto,
		}}),
	)
	res.Journal = append(res.Journal, m.record(MatchRoomPaired, room))
	return res, nil
}

// StartGame 廣播標準對局描述
//
// 房間不存在或尚未配對時不做任何事。
func (m *Manager) StartGame(connID, roomID string) Result {
	room, ok := m.authorize(connID, roomID, EventStartGame)
	if !ok {
		return Result{}
	}
	if room.State() != StateActive {
		m.logger.Debug("房間尚未配對，忽略 start_game", "room_id", roomID, "conn_id", connID)
		return Result{}
	}

	bianco, nero := room.Players[0], room.Players[1]
	descriptor := MatchDescriptor{
		RoomID:   room.ID,
		Bianco:   seated(bianco, TeamBianco),
		Nero:     seated(nero, TeamNero),
		Modalita: DefaultStartMode,
		Online:   true,
	}

	m.logger.Info("對局開始", "room_id", room.ID)

	return Result{
		Out:     []Instruction{broadcast(room.ID, Event{Type: EventStartGame, Data: descriptor})},
		Journal: []MatchEvent{m.record(MatchStarted, room)},
	}
}

// Move 交換輪次並將走步轉發給整個房間
//
// 不檢查是否輪到發送者，也不檢查走步是否合法。
func (m *Manager) Move(connID, roomID string, move json.RawMessage) Result {
	room, ok := m.authorize(connID, roomID, EventMove)
	if !ok {
		return Result{}
	}

	next := room.FlipTurn(m.now())

	m.logger.Debug("轉發走步", "room_id", room.ID, "conn_id", connID, "next_turn", next)

	return Result{
		Out: []Instruction{broadcast(room.ID, Event{Type: EventOpponentMove, Data: mergeMove(move, next)})},
	}
}

// Win 原樣廣播勝利訊息後刪除房間
//
// 房間不存在時廣播不會送達任何人，刪除為冪等操作。
func (m *Manager) Win(connID string, req WinRequest, raw json.RawMessage) Result {
	res := Result{
		Out: []Instruction{
			broadcast(req.RoomID, Event{Type: EventPartitaVinta, Data: raw}),
			dissolveGroup(req.RoomID),
		},
	}

	room, existed := m.store.Remove(req.RoomID)
	if !existed {
		return res
	}

	ev := m.record(MatchFinished, room)
	ev.Winner = req.WinnerName()
	res.Journal = append(res.Journal, ev)

	m.logger.Info("對局結束", "room_id", room.ID, "conn_id", connID, "winner", ev.Winner)
	return res
}

// Disconnect 處理連線中斷
//
// 透過反向索引找到連線所在的每個房間（依 ID 排序），逐一移除玩家：
//   - 房間清空：直接刪除，不送出任何事件
//   - 仍有一人：補發 abbandono 勝利通知給留下的玩家，再廣播 player_left
func (m *Manager) Disconnect(connID string) Result {
	var res Result
	for _, roomID := range m.store.RoomsOf(connID) {
		part := m.leaveRoom(connID, roomID)
		res.Out = append(res.Out, part.Out...)
		res.Journal = append(res.Journal, part.Journal...)
	}
	return res
}

func (m *Manager) leaveRoom(connID, roomID string) Result {
	m.store.Unseat(connID, roomID)

	room, ok := m.store.Get(roomID)
	if !ok {
		return Result{}
	}

	left, _ := room.RemovePlayer(connID, m.now())
	res := Result{Out: []Instruction{leaveGroup(roomID, connID)}}

	if len(room.Players) == 0 {
		m.store.Remove(roomID)
		res.Out = append(res.Out, dissolveGroup(roomID))
		res.Journal = append(res.Journal, m.record(MatchRoomClosed, room))
		m.logger.Info("房間已清空並刪除", "room_id", roomID)
		return res
	}

	remaining := room.Players[0]
	res.Out = append(res.Out,
		sendTo(remaining.ConnID, Event{Type: EventPartitaVinta, Data: AbandonWin{
			RoomID:    roomID,
			Vincitore: Winner{Nome: remaining.Nome, Foto: remaining.Foto},
			Abbandono: true,
		}}),
		broadcast(roomID, Event{Type: EventPlayerLeft}),
	)

	ev := m.record(MatchAbandoned, room)
	ev.Winner = remaining.Nome
	res.Journal = append(res.Journal, ev)

	name := ""
	if left != nil {
		name = left.Nome
	}
	m.logger.Info("玩家斷線離開房間", "room_id", roomID, "conn_id", connID, "nome", name)
	return res
}

// Room 取得房間副本
func (m *Manager) Room(roomID string) (Snapshot, bool) {
	room, ok := m.store.Get(roomID)
	if !ok {
		return Snapshot{}, false
	}
	return room.Snapshot(), true
}

// RoomsOf 查詢連線所在的房間
func (m *Manager) RoomsOf(connID string) []string {
	return m.store.RoomsOf(connID)
}

// Stats 統計資訊
type Stats struct {
	Rooms   int `json:"total_rooms"`
	Players int `json:"total_players"`
	Forming int `json:"forming"`
	Active  int `json:"active"`
}

// Stats 計算統計資訊
func (m *Manager) Stats() Stats {
	stats := Stats{Rooms: m.store.Len()}
	for _, id := range m.store.IDs() {
		room, _ := m.store.Get(id)
		stats.Players += len(room.Players)
		if room.State() == StateActive {
			stats.Active++
		} else {
			stats.Forming++
		}
	}
	return stats
}

// authorize 取得房間並套用成員檢查；失敗時一律靜默
func (m *Manager) authorize(connID, roomID, event string) (*Room, bool) {
	room, ok := m.store.Get(roomID)
	if !ok {
		m.logger.Debug("房間不存在，忽略事件", "event", event, "room_id", roomID, "conn_id", connID)
		return nil, false
	}
	if m.requireMembership && !room.HasPlayer(connID) {
		m.logger.Debug("非房間成員，忽略事件", "event", event, "room_id", roomID, "conn_id", connID)
		return nil, false
	}
	return room, true
}

func (m *Manager) record(typ MatchEventType, room *Room) MatchEvent {
	names := make([]string, 0, len(room.Players))
	for _, p := range room.Players {
		names = append(names, p.Nome)
	}
	return MatchEvent{
		Type:    typ,
		RoomID:  room.ID,
		Mode:    room.Mode,
		Players: names,
		Turn:    room.Turn,
		At:      m.now(),
	}
}

func seated(p *Player, team Team) SeatedPlayer {
	return SeatedPlayer{ID: p.ConnID, Nome: p.Nome, Foto: p.Foto, Team: team}
}

// mergeMove 將 nextTurn 併入走步物件
//
// 走步為 JSON 物件時保留其所有欄位；缺少或為 null 時只有 nextTurn；
// 其他型別（字串、陣列、數字）放在 "move" 欄位下。
func mergeMove(move json.RawMessage, next Team) map[string]json.RawMessage {
	nextRaw, _ := json.Marshal(next)

	trimmed := bytes.TrimSpace(move)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]json.RawMessage{"nextTurn": nextRaw}
	}

	fields := make(map[string]json.RawMessage)
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
		return map[string]json.RawMessage{"move": trimmed, "nextTurn": nextRaw}
	}
	fields["nextTurn"] = nextRaw
	return fields
}
