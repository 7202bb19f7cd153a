package internal_test

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/mrpeppo47/server-scacchi/internal"
	"github.com/mrpeppo47/server-scacchi/internal/testutils"
	apperrors "github.com/mrpeppo47/server-scacchi/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestManager(opts ...internal.Option) *internal.Manager {
	opts = append([]internal.Option{internal.WithClock(func() time.Time { return fixedNow })}, opts...)
	return internal.NewManager(testutils.TestLogger(), opts...)
}

func roomReq(id, nome, foto, modalita string) internal.RoomRequest {
	return internal.RoomRequest{RoomID: id, Nome: nome, Foto: foto, Modalita: modalita}
}

// pairedManager 建立 r1：c1 (Anna) 為 bianco、c2 (Bruno) 為 nero
func pairedManager(t *testing.T, opts ...internal.Option) *internal.Manager {
	t.Helper()
	m := newTestManager(opts...)
	_, err := m.CreateRoom("c1", roomReq("r1", "Anna", "a.png", "classic"))
	require.NoError(t, err)
	_, err = m.JoinRoom("c2", roomReq("r1", "Bruno", "b.png", "classic"))
	require.NoError(t, err)
	return m
}

// payload 將事件負載轉成通用 JSON 物件
func payload(t *testing.T, ev internal.Event) map[string]any {
	t.Helper()
	raw, err := json.Marshal(ev.Data)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func findEvent(res internal.Result, kind internal.Delivery, target, event string) (internal.Event, bool) {
	for _, in := range res.Out {
		if in.Kind == kind && in.Target == target && in.Event.Type == event {
			return in.Event, true
		}
	}
	return internal.Event{}, false
}

func journalTypes(res internal.Result) []internal.MatchEventType {
	var types []internal.MatchEventType
	for _, ev := range res.Journal {
		types = append(types, ev.Type)
	}
	return types
}

// TestManager_CreateRoom 測試創建房間
func TestManager_CreateRoom(t *testing.T) {
	m := newTestManager()

	res, err := m.CreateRoom("c1", roomReq("r1", "Anna", "a.png", "classic"))
	require.NoError(t, err)

	require.Len(t, res.Out, 2)
	assert.Equal(t, internal.JoinGroup, res.Out[0].Kind, "group join precedes the reply")
	assert.Equal(t, "r1", res.Out[0].Target)
	assert.Equal(t, "c1", res.Out[0].ConnID)

	ev, ok := findEvent(res, internal.DeliverReply, "c1", internal.EventRoomCreated)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"roomId":   "r1",
		"nome":     "Anna",
		"foto":     "a.png",
		"modalita": "classic",
	}, payload(t, ev))

	snap, ok := m.Room("r1")
	require.True(t, ok)
	assert.Equal(t, internal.StateForming, snap.State)
	assert.Equal(t, internal.TeamBianco, snap.Turn)
	assert.Equal(t, []internal.MatchEventType{internal.MatchRoomCreated}, journalTypes(res))
}

// TestManager_CreateRoomTwice 第二次創建相同 ID 必定失敗且不改變狀態
func TestManager_CreateRoomTwice(t *testing.T) {
	m := newTestManager()

	_, err := m.CreateRoom("c1", roomReq("r1", "Anna", "a.png", "classic"))
	require.NoError(t, err)
	before, _ := m.Room("r1")
	statsBefore := m.Stats()

	res, err := m.CreateRoom("c2", roomReq("r1", "Bruno", "b.png", "blitz"))
	require.Error(t, err)
	assert.True(t, apperrors.IsRoomExists(err))
	assert.Equal(t, "Stanza già esistente", apperrors.ClientMessage(err))
	assert.Empty(t, res.Out)

	after, _ := m.Room("r1")
	assert.Equal(t, before, after)
	assert.Equal(t, statsBefore, m.Stats())

	assert.Empty(t, m.RoomsOf("c2"))
}

// TestManager_CreateRoomErrors 測試創建房間的拒絕情況
func TestManager_CreateRoomErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m *internal.Manager)
		connID  string
		req     internal.RoomRequest
		checkFn func(error) bool
		message string
	}{
		{
			name:    "empty room id",
			connID:  "c1",
			req:     roomReq("", "Anna", "", ""),
			checkFn: apperrors.IsInvalidInput,
			message: "Richiesta non valida",
		},
		{
			name: "existing id from another creator",
			setup: func(m *internal.Manager) {
				_, _ = m.CreateRoom("c1", roomReq("r1", "Anna", "", ""))
			},
			connID:  "c2",
			req:     roomReq("r1", "Bruno", "", ""),
			checkFn: apperrors.IsRoomExists,
			message: "Stanza già esistente",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager()
			if tt.setup != nil {
				tt.setup(m)
			}
			stats := m.Stats()

			_, err := m.CreateRoom(tt.connID, tt.req)
			require.Error(t, err)
			assert.True(t, tt.checkFn(err))
			assert.Equal(t, tt.message, apperrors.ClientMessage(err))
			assert.Equal(t, stats, m.Stats())
		})
	}
}

// TestManager_JoinRoomPairing 兩位玩家收到不同格式的配對通知
func TestManager_JoinRoomPairing(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateRoom("c1", roomReq("r1", "A", "a.png", "classic"))
	require.NoError(t, err)

	res, err := m.JoinRoom("c2", roomReq("r1", "B", "b.png", "classic"))
	require.NoError(t, err)

	require.NotEmpty(t, res.Out)
	assert.Equal(t, internal.JoinGroup, res.Out[0].Kind)
	assert.Equal(t, "c2", res.Out[0].ConnID)

	snap, _ := m.Room("r1")
	require.Len(t, snap.Players, 2)
	assert.Equal(t, internal.StateActive, snap.State)

	// 第一位玩家：對手資訊與完整對局描述
	first, ok := findEvent(res, internal.DeliverTo, "c1", internal.EventOpponentJoined)
	require.True(t, ok)
	firstPayload := payload(t, first)
	assert.Equal(t, []string{"creatore", "foto", "id", "nome", "partita"}, keys(firstPayload))
	assert.Equal(t, "B", firstPayload["nome"])
	assert.Equal(t, "b.png", firstPayload["foto"])
	assert.Equal(t, false, firstPayload["creatore"])
	assert.Equal(t, "r1", firstPayload["id"])

	partita, ok := firstPayload["partita"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "r1", partita["roomId"])
	assert.Equal(t, "classic", partita["modalita"])
	players, ok := partita["players"].([]any)
	require.True(t, ok)
	require.Len(t, players, 2)
	assert.Equal(t, map[string]any{"id": "c1", "nome": "A", "foto": "a.png", "team": "bianco"}, players[0])
	assert.Equal(t, map[string]any{"id": "c2", "nome": "B", "foto": "b.png", "team": "nero"}, players[1])

	// 第二位玩家：只有房主資訊
	second, ok := findEvent(res, internal.DeliverTo, "c2", internal.EventOpponentJoin)
	require.True(t, ok)
	secondPayload := payload(t, second)
	assert.Equal(t, []string{"foto", "id", "nome"}, keys(secondPayload))
	assert.Equal(t, map[string]any{"id": "r1", "nome": "A", "foto": "a.png"}, secondPayload)

	assert.NotEqual(t, keys(firstPayload), keys(secondPayload))
	assert.Equal(t, []internal.MatchEventType{internal.MatchRoomPaired}, journalTypes(res))
}

// TestManager_JoinRoomKeepsCreatorMode 加入者的 modalita 不影響房間
func TestManager_JoinRoomKeepsCreatorMode(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateRoom("c1", roomReq("r1", "A", "", "classic"))
	require.NoError(t, err)
	_, err = m.JoinRoom("c2", roomReq("r1", "B", "", "blitz"))
	require.NoError(t, err)

	snap, _ := m.Room("r1")
	assert.Equal(t, "classic", snap.Mode)
}

// TestManager_JoinRoomErrors 測試加入房間的拒絕情況
func TestManager_JoinRoomErrors(t *testing.T) {
	tests := []struct {
		name    string
		connID  string
		roomID  string
		full    bool
		checkFn func(error) bool
		message string
	}{
		{name: "room not found", connID: "c3", roomID: "ghost", checkFn: apperrors.IsNotFound, message: "Stanza non trovata"},
		{name: "room full", connID: "c3", roomID: "r1", full: true, checkFn: apperrors.IsRoomFull, message: "Stanza piena"},
		{name: "empty room id", connID: "c3", roomID: "", checkFn: apperrors.IsInvalidInput, message: "Richiesta non valida"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager()
			_, err := m.CreateRoom("c1", roomReq("r1", "A", "", ""))
			require.NoError(t, err)
			if tt.full {
				_, err = m.JoinRoom("c2", roomReq("r1", "B", "", ""))
				require.NoError(t, err)
			}
			before, _ := m.Room("r1")

			res, err := m.JoinRoom(tt.connID, roomReq(tt.roomID, "X", "", ""))
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), "got %v", err)
			assert.Equal(t, tt.message, apperrors.ClientMessage(err))
			assert.Empty(t, res.Out)

			after, _ := m.Room("r1")
			assert.Equal(t, before, after, "a rejected join must not mutate the room")
		})
	}
}

// TestManager_JoinFullRoomNeverMutates 滿房加入多次都不改變玩家
func TestManager_JoinFullRoomNeverMutates(t *testing.T) {
	m := pairedManager(t)
	before, _ := m.Room("r1")

	for _, conn := range []string{"c3", "c4", "c5"} {
		_, err := m.JoinRoom(conn, roomReq("r1", "X", "", ""))
		assert.True(t, apperrors.IsRoomFull(err))
	}

	after, _ := m.Room("r1")
	assert.Equal(t, before.Players, after.Players)
}

// TestManager_StartGame 測試開始對局
func TestManager_StartGame(t *testing.T) {
	m := pairedManager(t)

	res := m.StartGame("c1", "r1")
	ev, ok := findEvent(res, internal.DeliverRoom, "r1", internal.EventStartGame)
	require.True(t, ok)

	assert.Equal(t, map[string]any{
		"roomId":   "r1",
		"bianco":   map[string]any{"id": "c1", "nome": "Anna", "foto": "a.png", "team": "bianco"},
		"nero":     map[string]any{"id": "c2", "nome": "Bruno", "foto": "b.png", "team": "nero"},
		"modalita": "normale",
		"online":   true,
	}, payload(t, ev))
	assert.Equal(t, []internal.MatchEventType{internal.MatchStarted}, journalTypes(res))
}

// TestManager_StartGameIgnored 測試 start_game 靜默忽略的情況
func TestManager_StartGameIgnored(t *testing.T) {
	t.Run("missing room", func(t *testing.T) {
		m := newTestManager()
		assert.Empty(t, m.StartGame("c1", "ghost").Out)
	})

	t.Run("forming room", func(t *testing.T) {
		m := newTestManager()
		_, err := m.CreateRoom("c1", roomReq("r1", "A", "", ""))
		require.NoError(t, err)
		assert.Empty(t, m.StartGame("c1", "r1").Out)
	})

	t.Run("outsider with membership check", func(t *testing.T) {
		m := pairedManager(t, internal.WithMembershipCheck(true))
		assert.Empty(t, m.StartGame("c9", "r1").Out)
		assert.NotEmpty(t, m.StartGame("c2", "r1").Out)
	})

	t.Run("outsider without membership check", func(t *testing.T) {
		m := pairedManager(t)
		assert.NotEmpty(t, m.StartGame("c9", "r1").Out)
	})
}

// TestManager_MoveTogglesTurn 每次走步恰好交換一次輪次
func TestManager_MoveTogglesTurn(t *testing.T) {
	m := pairedManager(t)
	move := json.RawMessage(`{"from":"e2","to":"e4"}`)

	res := m.Move("c1", "r1", move)
	ev, ok := findEvent(res, internal.DeliverRoom, "r1", internal.EventOpponentMove)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"from": "e2", "to": "e4", "nextTurn": "nero"}, payload(t, ev))

	snap, _ := m.Room("r1")
	assert.Equal(t, internal.TeamNero, snap.Turn, "one move flips the turn once")

	res = m.Move("c2", "r1", json.RawMessage(`{"from":"e7","to":"e5"}`))
	ev, ok = findEvent(res, internal.DeliverRoom, "r1", internal.EventOpponentMove)
	require.True(t, ok)
	assert.Equal(t, "bianco", payload(t, ev)["nextTurn"])

	snap, _ = m.Room("r1")
	assert.Equal(t, internal.TeamBianco, snap.Turn, "two moves restore the original turn")
	assert.Empty(t, res.Journal)
}

// TestManager_MovePayloadShapes 測試各種走步格式的合併
func TestManager_MovePayloadShapes(t *testing.T) {
	tests := []struct {
		name string
		move string
		want map[string]any
	}{
		{name: "object", move: `{"san":"Nf3"}`, want: map[string]any{"san": "Nf3", "nextTurn": "nero"}},
		{name: "object overrides nextTurn", move: `{"nextTurn":"bianco"}`, want: map[string]any{"nextTurn": "nero"}},
		{name: "missing", move: ``, want: map[string]any{"nextTurn": "nero"}},
		{name: "null", move: `null`, want: map[string]any{"nextTurn": "nero"}},
		{name: "string", move: `"e4"`, want: map[string]any{"move": "e4", "nextTurn": "nero"}},
		{name: "array", move: `["e2","e4"]`, want: map[string]any{"move": []any{"e2", "e4"}, "nextTurn": "nero"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := pairedManager(t)
			res := m.Move("c1", "r1", json.RawMessage(tt.move))
			ev, ok := findEvent(res, internal.DeliverRoom, "r1", internal.EventOpponentMove)
			require.True(t, ok)
			assert.Equal(t, tt.want, payload(t, ev))
		})
	}
}

// TestManager_MoveIgnored 測試走步被靜默忽略的情況
func TestManager_MoveIgnored(t *testing.T) {
	m := newTestManager()
	assert.Empty(t, m.Move("c1", "ghost", json.RawMessage(`{}`)).Out)

	m = pairedManager(t, internal.WithMembershipCheck(true))
	assert.Empty(t, m.Move("c9", "r1", json.RawMessage(`{}`)).Out)
	snap, _ := m.Room("r1")
	assert.Equal(t, internal.TeamBianco, snap.Turn, "ignored move must not flip the turn")
}

// TestManager_Win 勝利訊息原樣廣播後刪除房間
func TestManager_Win(t *testing.T) {
	m := pairedManager(t)
	raw := json.RawMessage(`{"roomId":"r1","vincitore":{"nome":"Anna","foto":"a.png"},"motivo":"scacco matto"}`)

	var req internal.WinRequest
	require.NoError(t, json.Unmarshal(raw, &req))

	res := m.Win("c1", req, raw)

	require.Len(t, res.Out, 2)
	assert.Equal(t, internal.DeliverRoom, res.Out[0].Kind)
	assert.Equal(t, internal.EventPartitaVinta, res.Out[0].Event.Type)
	forwarded, err := json.Marshal(res.Out[0].Event.Data)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(forwarded))
	assert.Equal(t, internal.DissolveGroup, res.Out[1].Kind)

	_, ok := m.Room("r1")
	assert.False(t, ok)
	for _, c := range []string{"c1", "c2"} {
		assert.Empty(t, m.RoomsOf(c), "reverse index must be cleared for %s", c)
	}

	require.Len(t, res.Journal, 1)
	assert.Equal(t, internal.MatchFinished, res.Journal[0].Type)
	assert.Equal(t, "Anna", res.Journal[0].Winner)

	// 之後可以重新使用同一個 ID
	_, err = m.CreateRoom("c1", roomReq("r1", "Anna", "", ""))
	assert.NoError(t, err)
}

// TestManager_WinWithAnyVincitoreShape vincitore 不是物件時仍廣播並刪除房間
func TestManager_WinWithAnyVincitoreShape(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		winner string
	}{
		{name: "string", raw: `{"roomId":"r1","vincitore":"Anna"}`},
		{name: "number", raw: `{"roomId":"r1","vincitore":1}`},
		{name: "null", raw: `{"roomId":"r1","vincitore":null}`},
		{name: "missing", raw: `{"roomId":"r1"}`},
		{name: "nome with wrong type", raw: `{"roomId":"r1","vincitore":{"nome":7}}`},
		{name: "object", raw: `{"roomId":"r1","vincitore":{"nome":"Bruno"}}`, winner: "Bruno"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := pairedManager(t)
			raw := json.RawMessage(tt.raw)

			var req internal.WinRequest
			require.NoError(t, json.Unmarshal(raw, &req))

			res := m.Win("c2", req, raw)

			require.Len(t, res.Out, 2)
			forwarded, err := json.Marshal(res.Out[0].Event.Data)
			require.NoError(t, err)
			assert.JSONEq(t, tt.raw, string(forwarded))

			_, ok := m.Room("r1")
			assert.False(t, ok)
			require.Len(t, res.Journal, 1)
			assert.Equal(t, tt.winner, res.Journal[0].Winner)
		})
	}
}

// TestManager_WinMissingRoom 房間不存在時仍廣播，不報錯
func TestManager_WinMissingRoom(t *testing.T) {
	m := newTestManager()
	raw := json.RawMessage(`{"roomId":"ghost"}`)

	res := m.Win("c1", internal.WinRequest{RoomID: "ghost"}, raw)
	assert.Len(t, res.Out, 2)
	assert.Empty(t, res.Journal)
	assert.Equal(t, 0, m.Stats().Rooms)
}

// TestManager_DisconnectFromActiveRoom 斷線時留下的玩家獲勝
func TestManager_DisconnectFromActiveRoom(t *testing.T) {
	m := pairedManager(t)

	res := m.Disconnect("c2")

	snap, ok := m.Room("r1")
	require.True(t, ok, "room stays with the remaining player")
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "c1", snap.Players[0].ConnID)
	assert.Equal(t, internal.StateForming, snap.State)

	require.Len(t, res.Out, 3)
	assert.Equal(t, internal.LeaveGroup, res.Out[0].Kind)
	assert.Equal(t, "c2", res.Out[0].ConnID)

	win, ok := findEvent(res, internal.DeliverTo, "c1", internal.EventPartitaVinta)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"roomId":    "r1",
		"vincitore": map[string]any{"nome": "Anna", "foto": "a.png"},
		"abbandono": true,
	}, payload(t, win))

	left, ok := findEvent(res, internal.DeliverRoom, "r1", internal.EventPlayerLeft)
	require.True(t, ok)
	assert.Nil(t, left.Data)

	require.Len(t, res.Journal, 1)
	assert.Equal(t, internal.MatchAbandoned, res.Journal[0].Type)
	assert.Equal(t, "Anna", res.Journal[0].Winner)

	assert.Empty(t, m.RoomsOf("c2"))
	assert.Equal(t, []string{"r1"}, m.RoomsOf("c1"))
}

// TestManager_DisconnectCreatorPromotesSecond 房主斷線後第二位玩家成為 players[0]
func TestManager_DisconnectCreatorPromotesSecond(t *testing.T) {
	m := pairedManager(t)

	res := m.Disconnect("c1")
	win, ok := findEvent(res, internal.DeliverTo, "c2", internal.EventPartitaVinta)
	require.True(t, ok)
	assert.Equal(t, "Bruno", payload(t, win)["vincitore"].(map[string]any)["nome"])

	// 新玩家加入後原本的第二位玩家坐 bianco
	res, err := m.JoinRoom("c3", roomReq("r1", "Carla", "", ""))
	require.NoError(t, err)
	ev, ok := findEvent(res, internal.DeliverTo, "c2", internal.EventOpponentJoined)
	require.True(t, ok)
	players := payload(t, ev)["partita"].(map[string]any)["players"].([]any)
	assert.Equal(t, "bianco", players[0].(map[string]any)["team"])
	assert.Equal(t, "c2", players[0].(map[string]any)["id"])
}

// TestManager_DisconnectLastPlayer 最後一人斷線時刪除房間且不送出事件
func TestManager_DisconnectLastPlayer(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateRoom("c1", roomReq("r1", "A", "", ""))
	require.NoError(t, err)

	res := m.Disconnect("c1")

	_, ok := m.Room("r1")
	assert.False(t, ok)
	for _, in := range res.Out {
		assert.NotContains(t, []internal.Delivery{internal.DeliverTo, internal.DeliverReply, internal.DeliverRoom}, in.Kind,
			"no events may be sent when the last player leaves")
	}
	assert.Equal(t, []internal.MatchEventType{internal.MatchRoomClosed}, journalTypes(res))
	assert.Equal(t, internal.Stats{}, m.Stats())
}

// TestManager_DisconnectUnknown 不在房間的連線斷線不做任何事
func TestManager_DisconnectUnknown(t *testing.T) {
	m := pairedManager(t)
	before := m.Stats()

	res := m.Disconnect("c9")
	assert.Empty(t, res.Out)
	assert.Empty(t, res.Journal)
	assert.Equal(t, before, m.Stats())
}

// TestManager_TurnNotResetAfterAbandon 斷線後輪次保持原狀
func TestManager_TurnNotResetAfterAbandon(t *testing.T) {
	m := pairedManager(t)
	m.Move("c1", "r1", nil)
	m.Disconnect("c2")

	snap, _ := m.Room("r1")
	assert.Equal(t, internal.TeamNero, snap.Turn)
}

// TestManager_RemainingPlayerCreatesNewRoom 對手離開後留下的玩家可以開新房
func TestManager_RemainingPlayerCreatesNewRoom(t *testing.T) {
	m := pairedManager(t)
	m.Disconnect("c2")

	res, err := m.CreateRoom("c1", roomReq("r2", "Anna", "a.png", "blitz"))
	require.NoError(t, err)
	_, ok := findEvent(res, internal.DeliverReply, "c1", internal.EventRoomCreated)
	assert.True(t, ok)

	assert.Equal(t, []string{"r1", "r2"}, m.RoomsOf("c1"))

	_, err = m.JoinRoom("c3", roomReq("r2", "Carla", "", ""))
	require.NoError(t, err)
	snap, _ := m.Room("r2")
	assert.Equal(t, internal.StateActive, snap.State)
}

// TestManager_CreatorCreatesSecondRoom 房間未配對時房主可以再開一間
func TestManager_CreatorCreatesSecondRoom(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateRoom("c1", roomReq("r1", "Anna", "", ""))
	require.NoError(t, err)

	_, err = m.CreateRoom("c1", roomReq("r2", "Anna", "", ""))
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, m.RoomsOf("c1"))
	assert.Equal(t, internal.Stats{Rooms: 2, Players: 2, Forming: 2}, m.Stats())
}

// TestManager_JoinOwnRoomIsNoop 已在房間內的連線再次加入不佔第二個座位
func TestManager_JoinOwnRoomIsNoop(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateRoom("c1", roomReq("r1", "Anna", "", ""))
	require.NoError(t, err)
	before, _ := m.Room("r1")

	res, err := m.JoinRoom("c1", roomReq("r1", "Anna", "", ""))
	require.NoError(t, err)
	require.Len(t, res.Out, 1)
	assert.Equal(t, internal.JoinGroup, res.Out[0].Kind)
	assert.Empty(t, res.Journal)

	after, _ := m.Room("r1")
	assert.Equal(t, before, after)

	// 房間仍可由其他人配對
	_, err = m.JoinRoom("c2", roomReq("r1", "Bruno", "", ""))
	require.NoError(t, err)
	snap, _ := m.Room("r1")
	assert.Equal(t, internal.StateActive, snap.State)
}

// TestManager_DisconnectLeavesEveryRoom 斷線時清理連線所在的每個房間
func TestManager_DisconnectLeavesEveryRoom(t *testing.T) {
	m := pairedManager(t)
	_, err := m.CreateRoom("c1", roomReq("r2", "Anna", "", ""))
	require.NoError(t, err)

	res := m.Disconnect("c1")

	assert.Equal(t, []internal.MatchEventType{internal.MatchAbandoned, internal.MatchRoomClosed}, journalTypes(res))
	_, ok := findEvent(res, internal.DeliverTo, "c2", internal.EventPartitaVinta)
	assert.True(t, ok)

	_, ok = m.Room("r2")
	assert.False(t, ok)
	snap, ok := m.Room("r1")
	require.True(t, ok)
	assert.Len(t, snap.Players, 1)
	assert.Empty(t, m.RoomsOf("c1"))
	assert.Equal(t, internal.Stats{Rooms: 1, Players: 1, Forming: 1}, m.Stats())
}

func TestManager_Stats(t *testing.T) {
	m := pairedManager(t)
	_, err := m.CreateRoom("c3", roomReq("r2", "C", "", ""))
	require.NoError(t, err)

	assert.Equal(t, internal.Stats{Rooms: 2, Players: 3, Forming: 1, Active: 1}, m.Stats())
}
