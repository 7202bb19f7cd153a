// Package internal 實作雙人西洋棋對局的即時配對伺服器。
//
// 伺服器只負責房間生命週期與訊息轉發，不驗證棋步、不計時、不保存對局。
//
// # 房間生命週期
//
// 房間由客戶端指定 ID 創建，最多兩位玩家：
//   - 創建者為 bianco（先手），第二位加入者為 nero
//   - 第二人入座時配對完成，雙方收到不同格式的通知
//   - partita_vinta 原樣廣播後刪除房間
//   - 一人斷線時留下的玩家以棄權獲勝；最後一人離開時房間刪除
//
// # 併發模型
//
// 所有入站事件經由 Router 的單一佇列依序處理：
//
//	Hub.readPump ─> Router.Dispatch ─> queue ─> Router.Run ─> Manager
//	                                                  │
//	                                                  └─> Transport (Hub) / Journal (NATS)
//
// Manager 與 Store 只在 Router 的 goroutine 內讀寫，不需要鎖。
// Hub 的連線表與群組表有自己的讀寫鎖，送出訊息一律非阻塞。
//
// # 線路格式
//
// 每個 WebSocket 訊框是一個 JSON 物件：
//
//	{"event": "move", "data": {"roomId": "r1", "move": {...}}}
//
// 升級後伺服器先送出 {"event":"connected","data":{"id":"<uuid>"}}。
// 被拒絕的 create_room / join_room 只回覆發起者一個 error 事件，內容為義大利文訊息。
//
// # 生命週期紀錄
//
// 設定 nats.url 時，房間的創建、配對、開始、結束、棄權、關閉會以 JSON 發布到
// <prefix>.<roomId>.<type>。發布失敗只記錄日誌。
package internal
