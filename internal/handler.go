package internal

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/koopa0/system-design/14-quiz-room/pkg/errors"
)

// Handler HTTP API 處理器
type Handler struct {
	coordinator *Coordinator
	hub         *Hub
	logger      *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(coordinator *Coordinator, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		hub:         hub,
		logger:      logger,
	}
}

// Routes 註冊所有路由並套用中介層
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/rooms", h.handleCreateRoom)
	mux.HandleFunc("GET /api/v1/rooms", h.handleListRooms)
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", h.handleRoomState)
	mux.HandleFunc("POST /api/v1/rooms/{room_id}/enter", h.handleEnterRoom)
	mux.HandleFunc("POST /api/v1/rooms/{room_id}/exit", h.handleExitRoom)
	mux.HandleFunc("GET /api/v1/rooms/{room_id}/players/{user_id}/connection", h.handleConnectionState)

	mux.HandleFunc("GET /ws/rooms/{room_id}", h.hub.ServeWS)

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /stats", h.handleStats)

	return h.recoverer(h.requestLogger(mux))
}

// principalRequest 請求中攜帶的使用者身分（驗證層不在此範圍）
type principalRequest struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

func (p principalRequest) validate() error {
	if p.UserID <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "user_id must be positive")
	}
	if p.Nickname == "" {
		return errors.New(errors.ErrCodeInvalidInput, "nickname is required")
	}
	return nil
}

func (p principalRequest) principal() Principal {
	return Principal{UserID: p.UserID, Nickname: p.Nickname}
}

type createRoomRequest struct {
	principalRequest
	Name         string `json:"name"`
	MaxPlayers   int    `json:"max_players"`
	Password     string `json:"password,omitempty"`
	Private      bool   `json:"private,omitempty"`
	Round        int    `json:"round,omitempty"`
	TimeLimitSec int    `json:"time_limit_sec,omitempty"`
}

type createRoomResponse struct {
	RoomID int64 `json:"room_id"`
}

// handleCreateRoom POST /api/v1/rooms
func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Name == "" {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "room name is required"))
		return
	}
	if req.MaxPlayers < 2 || req.MaxPlayers > 8 {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "max_players must be between 2 and 8"))
		return
	}

	roomID, err := h.coordinator.CreateRoom(r.Context(), CreateRoomRequest{
		Name:         req.Name,
		MaxPlayers:   req.MaxPlayers,
		Password:     req.Password,
		Private:      req.Private,
		Round:        req.Round,
		TimeLimitSec: req.TimeLimitSec,
	}, req.principal())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, createRoomResponse{RoomID: roomID})
}

type enterRoomRequest struct {
	principalRequest
	Password string `json:"password,omitempty"`
}

// handleEnterRoom POST /api/v1/rooms/{room_id}/enter
func (h *Handler) handleEnterRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.pathID(w, r, "room_id")
	if !ok {
		return
	}

	var req enterRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.coordinator.EnterRoom(r.Context(), roomID, req.Password, req.principal()); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleExitRoom POST /api/v1/rooms/{room_id}/exit
func (h *Handler) handleExitRoom(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.pathID(w, r, "room_id")
	if !ok {
		return
	}

	var req principalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.coordinator.ExitRoom(r.Context(), roomID, req.principal()); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleListRooms GET /api/v1/rooms
func (h *Handler) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"rooms": h.coordinator.GetAllRooms(),
	})
}

// handleRoomState GET /api/v1/rooms/{room_id}
func (h *Handler) handleRoomState(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.pathID(w, r, "room_id")
	if !ok {
		return
	}

	state, err := h.coordinator.RoomState(roomID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// handleConnectionState GET /api/v1/rooms/{room_id}/players/{user_id}/connection
func (h *Handler) handleConnectionState(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.pathID(w, r, "room_id")
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	state, err := h.coordinator.GetConnectionState(userID, roomID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"room_id": roomID,
		"state":   state,
	})
}

// handleHealth GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats GET /stats
func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.coordinator.Stats()
	stats["connections"] = h.hub.ConnectionCount()
	h.writeJSON(w, http.StatusOK, stats)
}

// pathID 解析路徑中的數字 ID
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid "+name))
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("序列化回應失敗", "error", err)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// writeError 將應用錯誤映射為 HTTP 回應
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{
		Code:    errors.Code(err),
		Message: err.Error(),
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Details = appErr.Details
	}

	h.writeJSON(w, httpStatus(resp.Code), resp)
}

// httpStatus 錯誤碼 → HTTP 狀態碼
func httpStatus(code string) int {
	switch code {
	case errors.ErrCodeRoomNotFound, errors.ErrCodePlayerNotFound, errors.ErrCodeQuizNotFound:
		return http.StatusNotFound
	case errors.ErrCodeRoomInProgress, errors.ErrCodeRoomUserLimitReached, errors.ErrCodeNoEligibleHost:
		return http.StatusConflict
	case errors.ErrCodeWrongPassword, errors.ErrCodeRoomEntryRequired:
		return http.StatusForbidden
	case errors.ErrCodeLockAcquisitionFailed:
		return http.StatusServiceUnavailable
	case errors.ErrCodeLockInterrupted:
		return 499 // client closed request
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger 記錄每個請求的方法、路徑、狀態與耗時
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// recoverer 攔截 panic，回 500 並記錄堆疊
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic 已攔截",
					"error", rec,
					"stack", string(debug.Stack()))
				h.writeError(w, errors.New(errors.ErrCodeInternal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack 讓 WebSocket 升級能穿過 statusRecorder
func (r *statusRecorder) Hijack() (conn net.Conn, rw *bufio.ReadWriter, err error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New(errors.ErrCodeInternal, "response writer does not support hijacking")
	}
	return hj.Hijack()
}
