package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/14-quiz-room/pkg/errors"
)

// WebSocket 即時通道設計：
//
//   HTTP 進房（EnterRoom）與 WebSocket 連線（InitializeSocket）分離，
//   先取得成員資格，再建立即時通道。未進房就連線會被拒絕。
//
//   每條連線持有獨立的 session ID。同一使用者的新連線會頂替舊連線：
//   頂替時舊 session 立即作廢，舊連線收尾時發現自己已不是當前連線，
//   便不回報斷線；跨實例的過期斷線通知則由協調器的 session 與
//   成員索引比對擋下。

const (
	// writeWait 寫入超時
	writeWait = 10 * time.Second
	// pongWait 等待 pong 的最長時間
	pongWait = 60 * time.Second
	// pingPeriod 發送 ping 的間隔（必須小於 pongWait）
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize 訊息大小上限
	maxMessageSize = 4096
	// sendBufferSize 每個連線的發送緩衝
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Envelope WebSocket 訊息封包
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// wsClient 單一 WebSocket 連線
type wsClient struct {
	sessionID string
	principal Principal
	roomID    int64
	conn      *websocket.Conn
	send      chan []byte
}

// Hub 管理所有 WebSocket 連線，並實作 MessageSender
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[int64]*wsClient // roomID → userID → client
	users map[int64]*wsClient           // userID → client（最新連線）

	coordinator *Coordinator
	logger      *slog.Logger
	closed      bool
}

// NewHub 創建連線管理中心
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[int64]map[int64]*wsClient),
		users:  make(map[int64]*wsClient),
		logger: logger,
	}
}

// Bind 綁定協調器。Hub 與 Coordinator 互相引用
// （Hub 回報斷線、Coordinator 透過 Hub 廣播），以延後綁定解開建構順序。
func (h *Hub) Bind(c *Coordinator) {
	h.coordinator = c
}

// ServeWS 處理 WebSocket 連線請求：GET /ws/rooms/{room_id}
//
// 身分由 user_id 與 nickname 查詢參數帶入（驗證層不在此範圍）。
// 使用者必須已透過 HTTP 進房，否則回 403。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(r.PathValue("room_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	nickname := r.URL.Query().Get("nickname")
	if nickname == "" {
		http.Error(w, "nickname required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket 升級失敗", "error", err)
		return
	}

	client := &wsClient{
		sessionID: uuid.NewString(),
		principal: Principal{UserID: userID, Nickname: nickname},
		roomID:    roomID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}

	// 先註冊，讓初始化協議產生的個人訊息能送達這條連線
	if !h.register(client) {
		// Hub 正在關閉，不接受新連線
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	if err := h.coordinator.InitializeSocket(r.Context(), roomID, client.sessionID, client.principal); err != nil {
		h.logger.Warn("socket 初始化失敗",
			"room_id", roomID,
			"user_id", userID,
			"error", err)
		h.unregister(client)
		h.coordinator.DetachSession(client.sessionID)

		code := websocket.ClosePolicyViolation
		if errors.IsLockAcquisitionFailed(err) {
			code = websocket.CloseTryAgainLater
		}
		msg := websocket.FormatCloseMessage(code, errors.Code(err))
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	h.logger.Info("WebSocket 連線建立",
		"room_id", roomID,
		"user_id", userID,
		"session_id", client.sessionID)

	go h.writePump(client)
	go h.readPump(client)
}

// register 登記連線；同一使用者的舊連線會被新連線頂替並關閉。
// Hub 已關閉時拒絕登記。
func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}

	var replaced *wsClient
	if old, ok := h.users[c.principal.UserID]; ok {
		replaced = old
		h.removeLocked(old)
		close(old.send)
	}

	room, ok := h.rooms[c.roomID]
	if !ok {
		room = make(map[int64]*wsClient)
		h.rooms[c.roomID] = room
	}
	room[c.principal.UserID] = c
	h.users[c.principal.UserID] = c
	h.mu.Unlock()

	// 被頂替的連線不再代表使用者：session 登記立即作廢，
	// 它稍後的斷線回報也會因不是當前連線而被略過
	if replaced != nil {
		h.coordinator.DetachSession(replaced.sessionID)
	}
	return true
}

// unregister 移除連線，回報移除時它是否仍是該使用者的當前連線
func (h *Hub) unregister(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(c)
}

func (h *Hub) removeLocked(c *wsClient) bool {
	if cur, ok := h.users[c.principal.UserID]; !ok || cur != c {
		return false
	}
	delete(h.users, c.principal.UserID)
	if room, ok := h.rooms[c.roomID]; ok {
		delete(room, c.principal.UserID)
		if len(room) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
	return true
}

// readPump 讀取迴圈，連線中斷時回報協調器
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		wasCurrent := h.unregister(c)
		c.conn.Close()

		// 已被新連線頂替的舊連線不代表使用者離開，不回報斷線
		if !wasCurrent {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		defer cancel()
		h.coordinator.HandleTransportDisconnect(ctx, c.sessionID, c.principal)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// 此服務不處理上行訊息，但需要持續讀取以驅動 pong 與偵測斷線
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("連線異常關閉",
					"user_id", c.principal.UserID,
					"error", err)
			}
			return
		}
	}
}

// writePump 寫入迴圈，定期發送 ping 維持連線
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 被新連線頂替或 Hub 關閉
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendToRoom 向房間內所有連線廣播
func (h *Hub) SendToRoom(roomID int64, msgType MessageType, payload any) {
	data, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("序列化訊息失敗", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.rooms[roomID] {
		h.deliverLocked(client, data)
	}
}

// SendToUser 向單一使用者的當前連線傳送
func (h *Hub) SendToUser(userID int64, msgType MessageType, payload any) {
	data, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("序列化訊息失敗", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.users[userID]; ok {
		h.deliverLocked(client, data)
	}
}

// deliverLocked 投遞訊息；發送緩衝已滿視為慢速消費者，直接丟棄
func (h *Hub) deliverLocked(c *wsClient, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("發送緩衝已滿，丟棄訊息",
			"user_id", c.principal.UserID,
			"room_id", c.roomID)
	}
}

// ConnectionCount 當前連線數
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// Stop 關閉所有連線
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	for _, client := range h.users {
		close(client.send)
	}
	h.rooms = make(map[int64]map[int64]*wsClient)
	h.users = make(map[int64]*wsClient)
}
