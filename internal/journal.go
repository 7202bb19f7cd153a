package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// MatchEventType 對局生命週期事件類型
type MatchEventType string

const (
	MatchRoomCreated MatchEventType = "room.created"
	MatchRoomPaired  MatchEventType = "room.paired"
	MatchStarted     MatchEventType = "match.started"
	MatchFinished    MatchEventType = "match.finished"
	MatchAbandoned   MatchEventType = "match.abandoned"
	MatchRoomClosed  MatchEventType = "room.closed"
)

// MatchEvent 對外發布的生命週期紀錄
type MatchEvent struct {
	Type    MatchEventType `json:"type"`
	RoomID  string         `json:"room_id"`
	Mode    string         `json:"mode,omitempty"`
	Players []string       `json:"players,omitempty"` // 顯示名稱，依座位順序
	Turn    Team           `json:"turn,omitempty"`
	Winner  string         `json:"winner,omitempty"`
	At      time.Time      `json:"at"`
}

// Journal 生命週期紀錄的出口
//
// 發布失敗只記錄日誌，不影響房間狀態。
type Journal interface {
	Publish(ctx context.Context, ev MatchEvent) error
	Close() error
}

// NopJournal 未設定 NATS 時使用
type NopJournal struct{}

func (NopJournal) Publish(context.Context, MatchEvent) error { return nil }
func (NopJournal) Close() error                              { return nil }

// NATSJournal 以 core NATS 發布紀錄，不等待確認
//
// Subject 格式：<prefix>.<roomID>.<type>，例如 scacchi.matches.r1.match.finished
type NATSJournal struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSJournal 連接 NATS
//
// 連線選項：
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
//   - 斷線與重連都寫入日誌
func NewNATSJournal(url, prefix string, logger *slog.Logger) (*NATSJournal, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("server-scacchi"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連線中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	return &NATSJournal{
		conn:   conn,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Publish 發布一筆紀錄
func (j *NATSJournal) Publish(_ context.Context, ev MatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化紀錄失敗: %w", err)
	}
	if err := j.conn.Publish(SubjectFor(j.prefix, ev.RoomID, ev.Type), data); err != nil {
		return fmt.Errorf("發布紀錄失敗: %w", err)
	}
	return nil
}

// Close 送出緩衝中的訊息後關閉連線
func (j *NATSJournal) Close() error {
	return j.conn.Drain()
}

// SubjectFor 組合 subject
//
// roomID 由客戶端決定，subject 的保留字元（. * > 空白）會被替換成底線。
func SubjectFor(prefix, roomID string, typ MatchEventType) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, roomID)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token + "." + string(typ)
}
