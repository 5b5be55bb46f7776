package internal

import (
	"sync"
	"time"

	"github.com/koopa0/system-design/14-quiz-room/pkg/errors"
)

// 系統設計問題：
//   如何在大量併發的進房 / 退房 / 斷線 / 重連交錯下，保持房間狀態一致？
//
// 核心挑戰：
//   1. 容量不變量：玩家數永遠不超過上限
//   2. 房主不變量：房主永遠是房間內的成員
//   3. 連線狀態機：CONNECTED ⇄ DISCONNECTED，寬限期滿才真正移除
//   4. 遊戲中封房：playing 狀態下禁止新玩家加入
//
// 設計方案：
//   ✅ 聚合根 - 所有變更操作是全函數，成功回傳新狀態或以具名錯誤失敗
//   ✅ RWMutex - 提供鎖外讀取（列表、存在性檢查）的併發安全
//   ✅ 外部序列化 - 寫入一律由協調層在分散式鎖內發起

// ConnectionState 玩家連線狀態
//
// 狀態轉換：
//   - CONNECTED → DISCONNECTED：傳輸層斷線
//   - DISCONNECTED → CONNECTED：寬限期內重連
//   - DISCONNECTED → (移除)：寬限期滿仍未重連
type ConnectionState string

const (
	// Connected 連線中
	Connected ConnectionState = "CONNECTED"
	// Disconnected 已斷線（寬限期內）
	Disconnected ConnectionState = "DISCONNECTED"
)

// Player 房間內的玩家
type Player struct {
	ID       int64           `json:"id"`
	Nickname string          `json:"nickname"` // 加入當下的暱稱快照
	State    ConnectionState `json:"state"`
	JoinedAt time.Time       `json:"joined_at"`
}

// NewPlayer 創建連線中的玩家
func NewPlayer(id int64, nickname string) *Player {
	return &Player{
		ID:       id,
		Nickname: nickname,
		State:    Connected,
		JoinedAt: time.Now(),
	}
}

// RoomSetting 房間設定
type RoomSetting struct {
	Name         string `json:"room_name"`
	MaxPlayers   int    `json:"max_players"`
	PasswordHash []byte `json:"-"` // nil 表示不需密碼
	Private      bool   `json:"private"`
}

// HasPassword 是否需要密碼
func (s RoomSetting) HasPassword() bool {
	return len(s.PasswordHash) > 0
}

// GameSetting 遊戲設定
type GameSetting struct {
	QuizID    int64         `json:"quiz_id"`
	Round     int           `json:"round"`
	TimeLimit time.Duration `json:"time_limit"`
}

// Room 遊戲房間聚合根
//
// 所有權：Player 由包含它的 Room 獨占持有，玩家離開或房間銷毀時一併移除。
// 寫入操作必須在協調層取得對應 room 鎖之後呼叫；
// 讀取方法可在鎖外併發呼叫（RWMutex 保護）。
type Room struct {
	ID      int64
	Setting RoomSetting
	Game    GameSetting

	mu      sync.RWMutex
	playing bool
	hostID  int64
	players map[int64]*Player
}

// NewRoom 創建房間，host 為第一位玩家兼房主
func NewRoom(id int64, setting RoomSetting, game GameSetting, host *Player) *Room {
	r := &Room{
		ID:      id,
		Setting: setting,
		Game:    game,
		hostID:  host.ID,
		players: make(map[int64]*Player),
	}
	r.players[host.ID] = host
	return r
}

// AddPlayer 加入玩家。
//
// 失敗情況：
//   - 遊戲進行中 → ErrRoomInProgress
//   - 人數已達上限 → ErrRoomUserLimitReached
//
// 已在房間內的玩家視為 no-op（冪等重入）。
func (r *Room) AddPlayer(p *Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.players[p.ID]; exists {
		return nil
	}
	if r.playing {
		return errors.ErrRoomInProgress
	}
	if len(r.players) >= r.Setting.MaxPlayers {
		return errors.ErrRoomUserLimitReached
	}

	r.players[p.ID] = p
	return nil
}

// RemovePlayer 移除玩家
func (r *Room) RemovePlayer(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.players[userID]; !exists {
		return errors.ErrPlayerNotFound
	}
	delete(r.players, userID)
	return nil
}

// UpdateHost 轉移房主
func (r *Room) UpdateHost(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.players[userID]; !exists {
		return errors.ErrPlayerNotFound
	}
	r.hostID = userID
	return nil
}

// NextHost 選出接任房主。
//
// 規則（確定性，不依賴 map 迭代順序）：
// 排除 excludeID，僅考慮 CONNECTED 的玩家，
// 取 JoinedAt 最早者，時間相同取 ID 較小者。
// 沒有候選人 → ErrNoEligibleHost。
func (r *Room) NextHost(excludeID int64) (*Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var next *Player
	for _, p := range r.players {
		if p.ID == excludeID || p.State != Connected {
			continue
		}
		if next == nil ||
			p.JoinedAt.Before(next.JoinedAt) ||
			(p.JoinedAt.Equal(next.JoinedAt) && p.ID < next.ID) {
			next = p
		}
	}
	if next == nil {
		return nil, errors.ErrNoEligibleHost
	}
	return next, nil
}

// UpdateConnectionState 變更玩家連線狀態
func (r *Room) UpdateConnectionState(userID int64, state ConnectionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.players[userID]
	if !exists {
		return errors.ErrPlayerNotFound
	}
	p.State = state
	return nil
}

// CheckPassword 驗證密碼。不設密碼的房間一律通過。
func (r *Room) CheckPassword(password string) error {
	if !r.Setting.HasPassword() {
		return nil
	}
	if !passwordMatches(r.Setting.PasswordHash, password) {
		return errors.ErrWrongPassword
	}
	return nil
}

// SetPlaying 切換遊戲進行狀態（由下游遊戲編排觸發）
func (r *Room) SetPlaying(playing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = playing
}

// IsPlaying 遊戲是否進行中
func (r *Room) IsPlaying() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playing
}

// HasPlayer 玩家是否在房間內
func (r *Room) HasPlayer(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.players[userID]
	return exists
}

// PlayerState 取得玩家連線狀態
func (r *Room) PlayerState(userID int64) (ConnectionState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.players[userID]
	if !exists {
		return "", errors.ErrPlayerNotFound
	}
	return p.State, nil
}

// PlayerCount 玩家數量
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// IsLastPlayer 是否為房間內最後一位玩家
func (r *Room) IsLastPlayer(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.players[userID]
	return exists && len(r.players) == 1
}

// IsHost 是否為房主
func (r *Room) IsHost(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostID == userID
}

// HostID 取得房主 ID
func (r *Room) HostID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostID
}

// PlayerView 玩家快照（用於序列化）
type PlayerView struct {
	ID       int64           `json:"id"`
	Nickname string          `json:"nickname"`
	State    ConnectionState `json:"state"`
	IsHost   bool            `json:"is_host"`
}

// Players 取得玩家快照列表，按加入時間排序（同時間按 ID 較小者優先）
func (r *Room) Players() []PlayerView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		ordered = append(ordered, p)
	}

	// 插入排序足矣（房間人數小）
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0; j-- {
			a, b := ordered[j-1], ordered[j]
			if b.JoinedAt.Before(a.JoinedAt) ||
				(b.JoinedAt.Equal(a.JoinedAt) && b.ID < a.ID) {
				ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
			} else {
				break
			}
		}
	}

	views := make([]PlayerView, 0, len(ordered))
	for _, p := range ordered {
		views = append(views, PlayerView{
			ID:       p.ID,
			Nickname: p.Nickname,
			State:    p.State,
			IsHost:   p.ID == r.hostID,
		})
	}
	return views
}

// RoomState 房間狀態快照
type RoomState struct {
	ID          int64        `json:"room_id"`
	Name        string       `json:"room_name"`
	MaxPlayers  int          `json:"max_players"`
	HasPassword bool         `json:"has_password"`
	Private     bool         `json:"private"`
	Playing     bool         `json:"playing"`
	HostID      int64        `json:"host_id"`
	Players     []PlayerView `json:"players"`
	Game        GameSetting  `json:"game_setting"`
}

// State 取得完整狀態快照（用於序列化）
func (r *Room) State() RoomState {
	players := r.Players()

	r.mu.RLock()
	defer r.mu.RUnlock()

	return RoomState{
		ID:          r.ID,
		Name:        r.Setting.Name,
		MaxPlayers:  r.Setting.MaxPlayers,
		HasPassword: r.Setting.HasPassword(),
		Private:     r.Setting.Private,
		Playing:     r.playing,
		HostID:      r.hostID,
		Players:     players,
		Game:        r.Game,
	}
}
