package internal

import (
	"time"

	apperrors "github.com/mrpeppo47/server-scacchi/pkg/errors"
)

// Team 陣營，同時也是輪次旗標
type Team string

const (
	TeamBianco Team = "bianco" // 先手，房間創建者
	TeamNero   Team = "nero"   // 後手，第二位加入者
)

// Opposite 回傳對手陣營
func (t Team) Opposite() Team {
	if t == TeamBianco {
		return TeamNero
	}
	return TeamBianco
}

// maxPlayers 每個房間固定兩人
const maxPlayers = 2

// RoomState 房間狀態
//
// 狀態機：
//
//	forming (1 人) → active (2 人) → terminated (自 Store 刪除)
//	                   ↓ 一人斷線
//	                 forming
//
// terminated 不會被觀察到：人數歸零或對局結束時房間在同一步驟內移除。
type RoomState string

const (
	StateForming RoomState = "forming"
	StateActive  RoomState = "active"
)

// Player 已入座的玩家
//
// Nome、Foto 由客戶端提供，原樣轉發，不做驗證。
type Player struct {
	ConnID string `json:"id"`
	Nome   string `json:"nome"`
	Foto   string `json:"foto"`
}

// Room 一場進行中或等待配對的對局
//
// Room 沒有鎖：只允許在 Router 的事件迴圈內讀寫。
type Room struct {
	ID        string
	Players   []*Player // 順序決定陣營：[0] bianco，[1] nero
	Turn      Team
	Mode      string // 客戶端自訂的模式標籤，創建後不可變
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRoom 以創建者為唯一玩家建立房間，先手為 bianco
func NewRoom(id string, creator *Player, mode string, now time.Time) *Room {
	return &Room{
		ID:        id,
		Players:   []*Player{creator},
		Turn:      TeamBianco,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// State 由人數推導狀態
func (r *Room) State() RoomState {
	if len(r.Players) >= maxPlayers {
		return StateActive
	}
	return StateForming
}

// IsFull 是否已滿
func (r *Room) IsFull() bool {
	return len(r.Players) >= maxPlayers
}

// AddPlayer 加入玩家
func (r *Room) AddPlayer(p *Player, now time.Time) error {
	if r.IsFull() {
		return apperrors.ErrRoomFull
	}
	r.Players = append(r.Players, p)
	r.UpdatedAt = now
	return nil
}

// RemovePlayer 依連線移除玩家，回傳被移除的玩家
func (r *Room) RemovePlayer(connID string, now time.Time) (*Player, bool) {
	for i, p := range r.Players {
		if p.ConnID == connID {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			r.UpdatedAt = now
			return p, true
		}
	}
	return nil, false
}

// HasPlayer 連線是否在此房間
func (r *Room) HasPlayer(connID string) bool {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return true
		}
	}
	return false
}

// FlipTurn 交換輪次並回傳下一手的陣營
func (r *Room) FlipTurn(now time.Time) Team {
	r.Turn = r.Turn.Opposite()
	r.UpdatedAt = now
	return r.Turn
}

// TeamAt 依座位推導陣營
func TeamAt(index int) Team {
	if index == 0 {
		return TeamBianco
	}
	return TeamNero
}

// Snapshot 房間的唯讀副本
type Snapshot struct {
	ID      string    `json:"roomId"`
	Players []Player  `json:"players"`
	Turn    Team      `json:"turn"`
	Mode    string    `json:"modalita"`
	State   RoomState `json:"state"`
}

// Snapshot 複製目前狀態
func (r *Room) Snapshot() Snapshot {
	players := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, *p)
	}
	return Snapshot{
		ID:      r.ID,
		Players: players,
		Turn:    r.Turn,
		Mode:    r.Mode,
		State:   r.State(),
	}
}
