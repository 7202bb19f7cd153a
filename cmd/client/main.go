// Command client 手動測試用的命令列客戶端
//
// 連線後創建或加入房間，印出收到的所有事件，並從標準輸入讀取指令：
//
//	start                 開始對局
//	move {"from":"e2"}    送出走步
//	win                   宣告自己獲勝
//	quit                  離開
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mrpeppo47/server-scacchi/pkg/client"
	"github.com/mrpeppo47/server-scacchi/pkg/logger"
)

var serverEvents = []string{
	"error",
	"room_created",
	"opponent_joined",
	"opponent_join",
	"start_game",
	"opponent_move",
	"partita_vinta",
	"player_left",
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:3000/ws", "伺服器 WebSocket 位址")
		roomID   = flag.String("room", "", "房間 ID")
		nome     = flag.String("nome", "giocatore", "顯示名稱")
		foto     = flag.String("foto", "", "頭像 URL")
		modalita = flag.String("modalita", "classica", "模式標籤")
		join     = flag.Bool("join", false, "加入既有房間而非創建")
		logLevel = flag.String("log-level", "info", "日誌級別")
	)
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, *logLevel, "text")

	if *roomID == "" {
		fmt.Fprintln(os.Stderr, "missing -room")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	c, err := client.Dial(dialCtx, *url)
	dialCancel()
	if err != nil {
		log.Error("連線失敗", "url", *url, "error", err)
		os.Exit(1)
	}
	defer c.Close()

	log.Info("已連線", "id", c.ID())

	for _, name := range serverEvents {
		c.On(name, func(data json.RawMessage) {
			fmt.Printf("<- %s %s\n", name, data)
		})
	}

	req := map[string]string{"roomId": *roomID, "nome": *nome, "foto": *foto, "modalita": *modalita}
	event := "create_room"
	if *join {
		event = "join_room"
	}
	if err := c.Emit(event, req); err != nil {
		log.Error("送出失敗", "event", event, "error", err)
		os.Exit(1)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			if err := c.Err(); err != nil {
				log.Warn("連線中斷", "error", err)
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleCommand(c, *roomID, *nome, *foto, line, log.Error) {
				return
			}
		}
	}
}

// handleCommand 執行一行指令，回傳 false 表示結束
func handleCommand(c *client.Client, roomID, nome, foto, line string, logErr func(string, ...any)) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")

	var err error
	switch cmd {
	case "":
		return true
	case "quit", "exit":
		return false
	case "start":
		err = c.Emit("start_game", map[string]string{"roomId": roomID})
	case "move":
		move := json.RawMessage(arg)
		if !json.Valid(move) {
			move, _ = json.Marshal(arg)
		}
		err = c.Emit("move", map[string]any{"roomId": roomID, "move": move})
	case "win":
		err = c.Emit("partita_vinta", map[string]any{
			"roomId":    roomID,
			"vincitore": map[string]string{"nome": nome, "foto": foto},
		})
	default:
		fmt.Fprintf(os.Stderr, "comando sconosciuto: %s\n", cmd)
	}

	if err != nil {
		logErr("送出失敗", "command", cmd, "error", err)
	}
	return true
}
