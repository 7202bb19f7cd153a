package internal

import (
	"sort"

	apperrors "github.com/mrpeppo47/server-scacchi/pkg/errors"
)

// Store 房間存放區
//
// 除了 roomID → Room，另外維護 connID → roomID 集合的反向索引，
// 斷線時直接定位連線所在的每個房間，不需掃描全部房間。
// 同一條連線可以同時坐在多個房間（例如對手離開後再開新房）。
// 兩個 map 一律在同一次呼叫內同步更新。
//
// Store 不是併發安全的，只能由 Router 的事件迴圈使用。
type Store struct {
	rooms  map[string]*Room               // roomID -> Room
	byConn map[string]map[string]struct{} // connID -> roomID 集合
}

// NewStore 創建空的存放區
func NewStore() *Store {
	return &Store{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Get 取得房間
func (s *Store) Get(roomID string) (*Room, bool) {
	room, ok := s.rooms[roomID]
	return room, ok
}

// Insert 新增房間並索引其玩家；ID 已存在時回傳 ErrRoomExists
func (s *Store) Insert(room *Room) error {
	if _, exists := s.rooms[room.ID]; exists {
		return apperrors.ErrRoomExists
	}
	s.rooms[room.ID] = room
	for _, p := range room.Players {
		s.Seat(p.ConnID, room.ID)
	}
	return nil
}

// Remove 移除房間與其玩家的索引，房間不存在時不做任何事
func (s *Store) Remove(roomID string) (*Room, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	for _, p := range room.Players {
		s.Unseat(p.ConnID, roomID)
	}
	delete(s.rooms, roomID)
	return room, true
}

// Seat 記錄連線坐在某房間
func (s *Store) Seat(connID, roomID string) {
	rooms, ok := s.byConn[connID]
	if !ok {
		rooms = make(map[string]struct{})
		s.byConn[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Unseat 清除連線在某房間的索引
func (s *Store) Unseat(connID, roomID string) {
	rooms, ok := s.byConn[connID]
	if !ok {
		return
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(s.byConn, connID)
	}
}

// RoomsOf 依字典序回傳連線所在的房間
func (s *Store) RoomsOf(connID string) []string {
	rooms := s.byConn[connID]
	if len(rooms) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rooms))
	for id := range rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len 房間數
func (s *Store) Len() int {
	return len(s.rooms)
}

// Seated 至少坐在一個房間的連線數
func (s *Store) Seated() int {
	return len(s.byConn)
}

// IDs 依字典序回傳所有房間 ID
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
