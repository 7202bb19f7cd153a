package internal

import "encoding/json"

// 事件名稱，與既有客戶端共用，不可更改
const (
	// 客戶端 → 伺服器
	EventCreateRoom   = "create_room"
	EventJoinRoom     = "join_room"
	EventStartGame    = "start_game"
	EventMove         = "move"
	EventPartitaVinta = "partita_vinta"
	EventDisconnect   = "disconnect" // 只由傳輸層產生

	// 伺服器 → 客戶端
	EventConnected      = "connected"
	EventError          = "error"
	EventRoomCreated    = "room_created"
	EventOpponentJoined = "opponent_joined" // 給房主，完整對局描述
	EventOpponentJoin   = "opponent_join"   // 給加入者，只有房主資訊
	EventOpponentMove   = "opponent_move"
	EventPlayerLeft     = "player_left"
)

// Event 線路上的訊框：{"event": name, "data": payload}
//
// Data 為 nil 時省略，例如 player_left。
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Frame 解碼中的入站訊框，Data 延後解析
type Frame struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InboundEvent 交給 Router 的入站事件
type InboundEvent struct {
	ConnID string
	Name   string
	Data   json.RawMessage
}

// 入站負載

// RoomRequest create_room / join_room
type RoomRequest struct {
	RoomID   string `json:"roomId"`
	Nome     string `json:"nome"`
	Foto     string `json:"foto"`
	Modalita string `json:"modalita"`
}

// RoomRef start_game
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// MoveRequest move，Move 原樣轉發
type MoveRequest struct {
	RoomID string          `json:"roomId"`
	Move   json.RawMessage `json:"move"`
}

// Winner 勝者資訊
type Winner struct {
	Nome string `json:"nome"`
	Foto string `json:"foto"`
}

// WinRequest partita_vinta，只解析路由需要的欄位，轉發時使用原始位元組
//
// vincitore 不限型別，只用於紀錄勝者名稱。
type WinRequest struct {
	RoomID    string          `json:"roomId"`
	Vincitore json.RawMessage `json:"vincitore"`
}

// WinnerName 盡力讀出 vincitore.nome，格式不符時回傳空字串
func (r WinRequest) WinnerName() string {
	var w Winner
	if len(r.Vincitore) == 0 || json.Unmarshal(r.Vincitore, &w) != nil {
		return ""
	}
	return w.Nome
}

// 出站負載

// Connected 升級後送出的連線 ID
type Connected struct {
	ID string `json:"id"`
}

// RoomCreated 回覆房主
type RoomCreated struct {
	RoomID   string `json:"roomId"`
	Nome     string `json:"nome"`
	Foto     string `json:"foto"`
	Modalita string `json:"modalita"`
}

// SeatedPlayer 帶陣營的玩家資訊
type SeatedPlayer struct {
	ID   string `json:"id"`
	Nome string `json:"nome"`
	Foto string `json:"foto"`
	Team Team   `json:"team"`
}

// Partita 配對時的對局描述，玩家以座位順序排列
type Partita struct {
	RoomID   string         `json:"roomId"`
	Players  []SeatedPlayer `json:"players"`
	Modalita string         `json:"modalita"`
}

// OpponentJoined 送給第一位玩家：對手資訊加完整對局描述
type OpponentJoined struct {
	Nome     string  `json:"nome"`
	Foto     string  `json:"foto"`
	Creatore bool    `json:"creatore"`
	ID       string  `json:"id"`
	Partita  Partita `json:"partita"`
}

// OpponentJoin 送給第二位玩家：只有房主的顯示資訊
type OpponentJoin struct {
	ID   string `json:"id"`
	Nome string `json:"nome"`
	Foto string `json:"foto"`
}

// MatchDescriptor start_game 廣播的標準對局描述，玩家以陣營為鍵
type MatchDescriptor struct {
	RoomID   string       `json:"roomId"`
	Bianco   SeatedPlayer `json:"bianco"`
	Nero     SeatedPlayer `json:"nero"`
	Modalita string       `json:"modalita"`
	Online   bool         `json:"online"`
}

// AbandonWin 對手斷線時補發給留下玩家的勝利通知
type AbandonWin struct {
	RoomID    string `json:"roomId"`
	Vincitore Winner `json:"vincitore"`
	Abbandono bool   `json:"abbandono"`
}

// DefaultStartMode start_game 固定使用的模式
const DefaultStartMode = "normale"

// Delivery 出站指令的定址方式
type Delivery int

const (
	DeliverReply    Delivery = iota // 回覆發起的連線
	DeliverTo                       // 指定連線
	DeliverRoom                     // 房間群組廣播
	JoinGroup                       // 將連線加入房間群組
	LeaveGroup                      // 將連線移出房間群組
	DissolveGroup                   // 解散房間群組
)

func (d Delivery) String() string {
	switch d {
	case DeliverReply:
		return "reply"
	case DeliverTo:
		return "to"
	case DeliverRoom:
		return "room"
	case JoinGroup:
		return "join"
	case LeaveGroup:
		return "leave"
	case DissolveGroup:
		return "dissolve"
	default:
		return "unknown"
	}
}

// Instruction 一條出站指令
//
// Target 依 Kind 為連線 ID 或房間 ID；群組指令另以 ConnID 指定成員。
type Instruction struct {
	Kind   Delivery
	Target string
	ConnID string
	Event  Event
}

func reply(connID string, ev Event) Instruction {
	return Instruction{Kind: DeliverReply, Target: connID, Event: ev}
}

func sendTo(connID string, ev Event) Instruction {
	return Instruction{Kind: DeliverTo, Target: connID, Event: ev}
}

func broadcast(roomID string, ev Event) Instruction {
	return Instruction{Kind: DeliverRoom, Target: roomID, Event: ev}
}

func joinGroup(roomID, connID string) Instruction {
	return Instruction{Kind: JoinGroup, Target: roomID, ConnID: connID}
}

func leaveGroup(roomID, connID string) Instruction {
	return Instruction{Kind: LeaveGroup, Target: roomID, ConnID: connID}
}

func dissolveGroup(roomID string) Instruction {
	return Instruction{Kind: DissolveGroup, Target: roomID}
}
