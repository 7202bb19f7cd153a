package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/mrpeppo47/server-scacchi/pkg/errors"
)

// RoomService HTTP 端點需要的唯讀查詢，由 Router 實作
type RoomService interface {
	Stats(ctx context.Context) (Stats, error)
	Query(ctx context.Context, fn func(*Manager)) error
}

// Handler HTTP 請求處理器
type Handler struct {
	rooms  RoomService
	hub    *Hub
	logger *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(rooms RoomService, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		rooms:  rooms,
		hub:    hub,
		logger: logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /{$}", wrap(h.alive))
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))
	mux.HandleFunc("GET /rooms/{room_id}", wrap(h.getRoom))

	// WebSocket 升級需要原始的 ResponseWriter（Hijacker），不經過日誌中間件
	mux.HandleFunc("GET /ws", h.recoverer(h.hub.ServeWS))

	return mux
}

// alive 存活訊息，純文字
func (h *Handler) alive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("✅ Socket.IO server attivo"))
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status":      "healthy",
		"time":        time.Now().Unix(),
		"connections": h.hub.ConnectionCount(),
	}, http.StatusOK)
}

// stats 統計資訊
//
// 房間統計在事件迴圈內計算，與正在處理的事件不會交錯。
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats, err := h.rooms.Stats(ctx)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"total_rooms":   stats.Rooms,
		"total_players": stats.Players,
		"forming":       stats.Forming,
		"active":        stats.Active,
		"connections":   h.hub.ConnectionCount(),
	}, http.StatusOK)
}

// getRoom 房間詳情
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var (
		snapshot Snapshot
		found    bool
	)
	if err := h.rooms.Query(ctx, func(m *Manager) {
		snapshot, found = m.Room(roomID)
	}); err != nil {
		h.serviceError(w, err)
		return
	}

	if !found {
		h.errorResponse(w, apperrors.ClientMessage(apperrors.ErrRoomNotFound), http.StatusNotFound)
		return
	}
	h.jsonResponse(w, snapshot, http.StatusOK)
}

func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrRouterStopped) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	h.logger.Warn("查詢房間狀態失敗", "error", err)
	h.errorResponse(w, apperrors.ClientMessage(err), status)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Debug("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, apperrors.ClientMessage(nil), http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
