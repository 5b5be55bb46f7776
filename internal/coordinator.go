package internal

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/koopa0/system-design/14-quiz-room/internal/lock"
	"github.com/koopa0/system-design/14-quiz-room/pkg/errors"
)

// 系統設計問題：
//   單一使用者可能同時從多個連線對自己發起競爭（多分頁登入），
//   多位使用者又同時對同一房間競爭，如何不死鎖地保證不變量？
//
// 核心挑戰：
//   1. 單房間成員資格：任何時刻一位使用者至多屬於一個房間
//   2. 鎖順序：user 鎖與 room 鎖都需要時，固定先 user 後 room，
//      任何操作都不得以相反順序巢狀持有，否則多房多人下會形成循環等待
//   3. 斷線路徑無同步呼叫者：失敗只記錄，不向外拋出
//
// 協議摘要：
//   - 創房 / 進房前，先在 user 鎖內檢查並退出「另一個」房間（同使用者開第二個分頁的情況）
//   - 退出舊房與加入新房在同一個 user 鎖區段內完成，
//     保證同一使用者的併發進房以「最後提交者」收斂到單一房間
//   - 需要兩類鎖時一律 user 外、room 內巢狀

const (
	// defaultRound 預設回合數
	defaultRound = 10
	// defaultTimeLimit 預設每回合時限
	defaultTimeLimit = 30 * time.Second
	// DefaultDisconnectGrace 預設斷線寬限期
	DefaultDisconnectGrace = 10 * time.Second

	// finalizeTimeout 寬限期任務執行的獨立超時
	finalizeTimeout = 10 * time.Second
)

// Principal 經過認證的使用者身分
type Principal struct {
	UserID   int64
	Nickname string
}

// CreateRoomRequest 創房請求
type CreateRoomRequest struct {
	Name         string
	MaxPlayers   int
	Password     string
	Private      bool
	Round        int
	TimeLimitSec int
}

// RoomSummary 房間摘要（列表與事件負載）
type RoomSummary struct {
	RoomState
	QuizTitle     string `json:"quiz_title"`
	QuestionCount int    `json:"question_count"`
}

// Coordinator 房間協調器，實作進房 / 退房 / 斷線 / 重連協議
type Coordinator struct {
	quiz        QuizService
	sender      MessageSender
	events      EventPublisher
	locks       *lock.Executor
	rooms       *RoomStore
	members     *MembershipIndex
	sessions    *SessionIndex
	disconnects *DisconnectScheduler
	grace       time.Duration
	roomIDs     atomic.Int64 // 單調遞增的房間 ID
	logger      *slog.Logger
}

// NewCoordinator 創建房間協調器。grace 為零時使用預設寬限期。
func NewCoordinator(
	quiz QuizService,
	sender MessageSender,
	events EventPublisher,
	locks *lock.Executor,
	grace time.Duration,
	logger *slog.Logger,
) *Coordinator {
	if grace <= 0 {
		grace = DefaultDisconnectGrace
	}
	return &Coordinator{
		quiz:        quiz,
		sender:      sender,
		events:      events,
		locks:       locks,
		rooms:       NewRoomStore(),
		members:     NewMembershipIndex(),
		sessions:    NewSessionIndex(),
		disconnects: NewDisconnectScheduler(logger),
		grace:       grace,
		logger:      logger,
	}
}

// Stop 停止協調器（取消所有待觸發的寬限期任務）
func (c *Coordinator) Stop() {
	c.disconnects.Stop()
}

// CreateRoom 創建房間，創建者為房主兼唯一玩家，回傳新房間 ID。
//
// 創建後在創建者的 user 鎖內檢查是否仍登記在「另一個」房間
// （同一使用者開第二個分頁創房時，斷線監聽不會觸發），若是則先退出舊房。
func (c *Coordinator) CreateRoom(ctx context.Context, req CreateRoomRequest, principal Principal) (int64, error) {
	quizMin, err := c.quiz.MinQuiz()
	if err != nil {
		return 0, err
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "hash room password")
	}

	round := req.Round
	if round <= 0 {
		round = defaultRound
	}
	timeLimit := time.Duration(req.TimeLimitSec) * time.Second
	if timeLimit <= 0 {
		timeLimit = defaultTimeLimit
	}

	roomID := c.roomIDs.Add(1)
	host := NewPlayer(principal.UserID, principal.Nickname)
	room := NewRoom(
		roomID,
		RoomSetting{
			Name:         req.Name,
			MaxPlayers:   req.MaxPlayers,
			PasswordHash: passwordHash,
			Private:      req.Private,
		},
		GameSetting{
			QuizID:    quizMin.ID,
			Round:     round,
			TimeLimit: timeLimit,
		},
		host,
	)

	c.rooms.Save(room)

	err = c.locks.WithLock(ctx, lock.UserLockPrefix, principal.UserID, func() error {
		if lockErr := c.exitIfInAnotherRoom(ctx, room, principal); lockErr != nil {
			return lockErr
		}
		c.members.Put(principal.UserID, roomID)
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.publish(ctx, RoomEvent{
		Type:       EventRoomCreated,
		RoomID:     roomID,
		Payload:    c.roomSummary(room),
		OccurredAt: time.Now(),
	})

	c.logger.Info("房間已創建",
		"room_id", roomID,
		"host_id", principal.UserID,
		"max_players", req.MaxPlayers)

	return roomID, nil
}

// EnterRoom 進入房間。
//
// 整段在 user 鎖內執行：退出舊房與加入新房必須是同一個原子單位，
// 否則同一使用者對兩個房間的併發進房可能雙雙通過退房檢查，
// 最後同時出現在兩個房間。room 鎖在 user 鎖內巢狀獲取（固定順序 user → room）。
//
// 已是本房成員時視為 no-op（冪等重連情況）。
func (c *Coordinator) EnterRoom(ctx context.Context, roomID int64, password string, principal Principal) error {
	room, ok := c.rooms.Find(roomID)
	if !ok {
		return errors.ErrRoomNotFound
	}

	return c.locks.WithLock(ctx, lock.UserLockPrefix, principal.UserID, func() error {
		if err := c.exitIfInAnotherRoom(ctx, room, principal); err != nil {
			return err
		}
		return c.locks.WithLock(ctx, lock.RoomLockPrefix, roomID, func() error {
			return c.performEnter(roomID, password, principal)
		})
	})
}

// performEnter 進房核心邏輯（需持有 room 鎖）
func (c *Coordinator) performEnter(roomID int64, password string, principal Principal) error {
	room, ok := c.rooms.Find(roomID)
	if !ok {
		return errors.ErrRoomNotFound
	}

	// 冪等重入
	if room.HasPlayer(principal.UserID) {
		return nil
	}

	if room.IsPlaying() {
		return errors.ErrRoomInProgress
	}
	if room.PlayerCount() >= room.Setting.MaxPlayers {
		return errors.ErrRoomUserLimitReached
	}
	if err := room.CheckPassword(password); err != nil {
		return err
	}

	if err := room.AddPlayer(NewPlayer(principal.UserID, principal.Nickname)); err != nil {
		return err
	}
	c.members.Put(principal.UserID, roomID)

	c.logger.Info("玩家進入房間",
		"room_id", roomID,
		"user_id", principal.UserID)
	return nil
}

// exitIfInAnotherRoom 使用者若登記在 target 以外的房間，先對舊房執行退房協議。
// 需持有使用者的 user 鎖；對舊房的 room 鎖在此巢狀獲取（固定順序 user → room）。
func (c *Coordinator) exitIfInAnotherRoom(ctx context.Context, target *Room, principal Principal) error {
	joinedRoomID, ok := c.members.RoomOf(principal.UserID)
	if !ok || joinedRoomID == target.ID {
		return nil
	}

	return c.locks.WithLock(ctx, lock.RoomLockPrefix, joinedRoomID, func() error {
		return c.exitOrDisconnect(ctx, joinedRoomID, principal)
	})
}

// exitOrDisconnect 退房或斷線定案協議（需同時持有 user 鎖與 room 鎖）。
//
//   - 遊戲進行中：軟移除 - 標記 DISCONNECTED、清除成員索引，
//     玩家留在房間內（遊戲仍可引用其計分資料）
//   - 非遊戲中：硬移除 - 從房間刪除玩家、清除索引，
//     最後一人則銷毀房間，房主離開則轉移房主
//
// 兩種路徑都對房間廣播成員變動通知與玩家列表。
func (c *Coordinator) exitOrDisconnect(ctx context.Context, roomID int64, principal Principal) error {
	room, ok := c.rooms.Find(roomID)
	if !ok {
		// 房間在斷線與定案之間消失，視為 no-op
		return nil
	}
	userID := principal.UserID

	if !room.HasPlayer(userID) {
		return nil
	}

	if room.IsPlaying() {
		// 成員索引已不指向本房間代表軟移除已經做過
		// （例如轉房時先行退出），不重複標記與廣播
		if joined, ok := c.members.RoomOf(userID); !ok || joined != roomID {
			return nil
		}
		if err := room.UpdateConnectionState(userID, Disconnected); err != nil {
			return err
		}
		c.members.Remove(userID, roomID)

		c.sender.SendToRoom(roomID, MsgSystemNotice, playerNotice(principal.Nickname, NoticeExit))
		c.sender.SendToRoom(roomID, MsgPlayerList, PlayerListPayload{Players: room.Players()})

		c.logger.Info("玩家已軟移除（遊戲中）",
			"room_id", roomID,
			"user_id", userID)
		return nil
	}

	if err := c.cleanRoom(ctx, room, userID); err != nil {
		return err
	}

	c.sender.SendToRoom(roomID, MsgSystemNotice, playerNotice(principal.Nickname, NoticeExit))
	c.sender.SendToRoom(roomID, MsgPlayerList, PlayerListPayload{Players: room.Players()})
	return nil
}

// cleanRoom 硬移除一位玩家（需持有 room 鎖）：
// 清除成員索引 → 最後一人則銷毀房間 → 房主離開則轉移 → 刪除玩家 → 發布更新事件
func (c *Coordinator) cleanRoom(ctx context.Context, room *Room, userID int64) error {
	roomID := room.ID

	c.members.Remove(userID, roomID)

	if room.IsLastPlayer(userID) {
		c.rooms.Remove(roomID)
		c.publish(ctx, RoomEvent{
			Type:       EventRoomDeleted,
			RoomID:     roomID,
			OccurredAt: time.Now(),
		})
		c.logger.Info("房間已刪除", "room_id", roomID)
		return nil
	}

	if room.IsHost(userID) {
		next, err := room.NextHost(userID)
		if err != nil {
			return err
		}
		if err := room.UpdateHost(next.ID); err != nil {
			return err
		}
		c.logger.Info("房主已轉移",
			"room_id", roomID,
			"old_host", userID,
			"new_host", next.ID)
	}

	if err := room.RemovePlayer(userID); err != nil {
		return err
	}

	c.publish(ctx, RoomEvent{
		Type:       EventRoomUpdated,
		RoomID:     roomID,
		Payload:    c.roomSummary(room),
		OccurredAt: time.Now(),
	})
	return nil
}

// ExitRoom 使用者明確退房（同步回應呼叫者）
func (c *Coordinator) ExitRoom(ctx context.Context, roomID int64, principal Principal) error {
	return c.locks.WithLock(ctx, lock.UserLockPrefix, principal.UserID, func() error {
		return c.locks.WithLock(ctx, lock.RoomLockPrefix, roomID, func() error {
			room, ok := c.rooms.Find(roomID)
			if !ok {
				return errors.ErrRoomNotFound
			}
			if !room.HasPlayer(principal.UserID) {
				return errors.ErrPlayerNotFound
			}

			if err := c.cleanRoom(ctx, room, principal.UserID); err != nil {
				return err
			}

			c.sender.SendToUser(principal.UserID, MsgExitSuccess, ExitSuccessPayload{Success: true})
			c.sender.SendToRoom(roomID, MsgSystemNotice, playerNotice(principal.Nickname, NoticeExit))
			c.sender.SendToRoom(roomID, MsgPlayerList, PlayerListPayload{Players: room.Players()})

			c.logger.Info("玩家離開房間",
				"room_id", roomID,
				"user_id", principal.UserID)
			return nil
		})
	})
}

// InitializeSocket 傳輸層連線初始化（socket attach）。
//
// 前置條件：使用者已是房間成員（否則 ErrRoomEntryRequired）。
//
// 兩種情況：
//   - 玩家處於 DISCONNECTED：視為重連，恢復 CONNECTED、
//     取消寬限期任務、向重連者回放房間目前狀態
//   - 否則為新連線：登記 session → room 映射，向新成員傳送遊戲設定，
//     並向全房廣播房間設定、玩家列表與進房通知
func (c *Coordinator) InitializeSocket(ctx context.Context, roomID int64, sessionID string, principal Principal) error {
	userID := principal.UserID

	return c.locks.WithLock(ctx, lock.UserLockPrefix, userID, func() error {
		return c.locks.WithLock(ctx, lock.RoomLockPrefix, roomID, func() error {
			room, ok := c.rooms.Find(roomID)
			if !ok {
				return errors.ErrRoomNotFound
			}
			if !room.HasPlayer(userID) {
				return errors.ErrRoomEntryRequired
			}

			c.sessions.Put(sessionID, roomID)
			c.members.Put(userID, roomID)

			state, err := room.PlayerState(userID)
			if err != nil {
				return err
			}

			// 重連
			if state == Disconnected {
				if err := room.UpdateConnectionState(userID, Connected); err != nil {
					return err
				}
				c.disconnects.Cancel(userID)

				c.logger.Info("玩家重連",
					"room_id", roomID,
					"user_id", userID)
				return c.replayState(room, principal)
			}

			// 新連線
			gameSetting, err := c.gameSettingPayload(room)
			if err != nil {
				return err
			}

			c.sender.SendToUser(userID, MsgGameSetting, gameSetting)
			c.sender.SendToRoom(roomID, MsgRoomSetting, room.State())
			c.sender.SendToRoom(roomID, MsgPlayerList, PlayerListPayload{Players: room.Players()})
			c.sender.SendToRoom(roomID, MsgSystemNotice, playerNotice(principal.Nickname, NoticeEnter))

			c.publish(ctx, RoomEvent{
				Type:       EventRoomUpdated,
				RoomID:     roomID,
				Payload:    c.roomSummary(room),
				OccurredAt: time.Now(),
			})
			return nil
		})
	})
}

// replayState 向寬限期內重連的玩家回放房間目前狀態
func (c *Coordinator) replayState(room *Room, principal Principal) error {
	userID := principal.UserID

	c.sender.SendToRoom(room.ID, MsgSystemNotice, playerNotice(principal.Nickname, NoticeReconnect))

	if room.IsPlaying() {
		quiz, err := c.quiz.QuizWithQuestions(room.Game.QuizID)
		if err != nil {
			return err
		}

		ranks := make([]RankEntry, 0, room.PlayerCount())
		for _, p := range room.Players() {
			ranks = append(ranks, RankEntry{UserID: p.ID, Nickname: p.Nickname, State: p.State})
		}

		c.sender.SendToUser(userID, MsgSystemNotice, playerNotice(principal.Nickname, NoticeReconnectPrivate))
		c.sender.SendToUser(userID, MsgRankUpdate, RankUpdatePayload{Ranks: ranks})
		c.sender.SendToUser(userID, MsgGameStart, GameStartPayload{
			QuizID:    quiz.ID,
			Questions: quiz.Questions,
		})
		return nil
	}

	gameSetting, err := c.gameSettingPayload(room)
	if err != nil {
		return err
	}

	c.sender.SendToUser(userID, MsgRoomSetting, room.State())
	c.sender.SendToUser(userID, MsgPlayerList, PlayerListPayload{Players: room.Players()})
	c.sender.SendToUser(userID, MsgGameSetting, gameSetting)
	return nil
}

// DetachSession 清除 session 登記（傳輸層初始化失敗時的回滾）
func (c *Coordinator) DetachSession(sessionID string) {
	c.sessions.Remove(sessionID)
}

// HandleTransportDisconnect 傳輸層斷線通知。
//
// 無同步呼叫者：所有失敗只記錄，不向外拋出。
// 標記 DISCONNECTED 後排程寬限期任務；寬限期內重連會取消任務。
func (c *Coordinator) HandleTransportDisconnect(ctx context.Context, sessionID string, principal Principal) {
	userID := principal.UserID

	roomID, hadSession := c.sessions.RoomOf(sessionID)
	c.sessions.Remove(sessionID)

	if !hadSession {
		return
	}
	if joined, ok := c.members.RoomOf(userID); !ok || joined != roomID {
		return
	}
	if _, ok := c.rooms.Find(roomID); !ok {
		return
	}

	err := c.locks.WithLock(ctx, lock.RoomLockPrefix, roomID, func() error {
		room, ok := c.rooms.Find(roomID)
		if !ok {
			return nil
		}
		return room.UpdateConnectionState(userID, Disconnected)
	})
	if err != nil {
		c.logger.Warn("標記玩家斷線失敗",
			"room_id", roomID,
			"user_id", userID,
			"error", err)
		return
	}

	c.logger.Info("玩家已斷線，進入寬限期",
		"room_id", roomID,
		"user_id", userID,
		"grace", c.grace)

	c.disconnects.Schedule(userID, c.grace, func() {
		c.finalizeDisconnect(roomID, principal)
	})
}

// finalizeDisconnect 寬限期滿的定案：重新檢查玩家仍是 DISCONNECTED
// （重連可能已取消或搶先），才執行退房協議
func (c *Coordinator) finalizeDisconnect(roomID int64, principal Principal) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	userID := principal.UserID

	err := c.locks.WithLock(ctx, lock.UserLockPrefix, userID, func() error {
		return c.locks.WithLock(ctx, lock.RoomLockPrefix, roomID, func() error {
			room, ok := c.rooms.Find(roomID)
			if !ok {
				return nil
			}
			state, stateErr := room.PlayerState(userID)
			if stateErr != nil || state != Disconnected {
				// 已重連或已被其他路徑移除
				return nil
			}
			return c.exitOrDisconnect(ctx, roomID, principal)
		})
	})
	if err != nil {
		c.logger.Warn("斷線定案失敗",
			"room_id", roomID,
			"user_id", userID,
			"error", err)
	}
}

// GetAllRooms 取得所有房間的摘要快照
func (c *Coordinator) GetAllRooms() []RoomSummary {
	rooms := c.rooms.All()
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, c.roomSummary(room))
	}
	return summaries
}

// GetConnectionState 查詢玩家在指定房間的連線狀態
func (c *Coordinator) GetConnectionState(userID, roomID int64) (ConnectionState, error) {
	room, ok := c.rooms.Find(roomID)
	if !ok {
		return "", errors.ErrRoomNotFound
	}
	return room.PlayerState(userID)
}

// RoomState 取得單一房間的狀態快照
func (c *Coordinator) RoomState(roomID int64) (RoomState, error) {
	room, ok := c.rooms.Find(roomID)
	if !ok {
		return RoomState{}, errors.ErrRoomNotFound
	}
	return room.State(), nil
}

// Stats 統計資訊
func (c *Coordinator) Stats() map[string]any {
	rooms := c.rooms.All()

	totalPlayers := 0
	playing := 0
	for _, room := range rooms {
		totalPlayers += room.PlayerCount()
		if room.IsPlaying() {
			playing++
		}
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_players": totalPlayers,
		"playing_rooms": playing,
	}
}

// roomSummary 組合房間摘要（附題庫資訊）
func (c *Coordinator) roomSummary(room *Room) RoomSummary {
	summary := RoomSummary{RoomState: room.State()}

	quiz, err := c.quiz.QuizByID(room.Game.QuizID)
	if err != nil {
		c.logger.Warn("取得題庫失敗", "quiz_id", room.Game.QuizID, "error", err)
		return summary
	}
	count, err := c.quiz.QuestionCount(room.Game.QuizID)
	if err != nil {
		c.logger.Warn("取得題目數量失敗", "quiz_id", room.Game.QuizID, "error", err)
		return summary
	}

	summary.QuizTitle = quiz.Title
	summary.QuestionCount = count
	return summary
}

// gameSettingPayload 組合遊戲設定通知
func (c *Coordinator) gameSettingPayload(room *Room) (GameSettingPayload, error) {
	quiz, err := c.quiz.QuizByID(room.Game.QuizID)
	if err != nil {
		return GameSettingPayload{}, err
	}
	count, err := c.quiz.QuestionCount(room.Game.QuizID)
	if err != nil {
		return GameSettingPayload{}, err
	}

	return GameSettingPayload{
		QuizID:        quiz.ID,
		QuizTitle:     quiz.Title,
		QuestionCount: count,
		Round:         room.Game.Round,
		TimeLimitSec:  int(room.Game.TimeLimit.Seconds()),
	}, nil
}

// publish 發布領域事件，失敗只記錄（核心正確性不依賴訂閱者）
func (c *Coordinator) publish(ctx context.Context, event RoomEvent) {
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Error("發布事件失敗",
			"type", event.Type,
			"room_id", event.RoomID,
			"error", err)
	}
}

// SetPlaying 切換房間的遊戲進行狀態（供下游遊戲編排在 room 鎖內呼叫）
func (c *Coordinator) SetPlaying(ctx context.Context, roomID int64, playing bool) error {
	return c.locks.WithLock(ctx, lock.RoomLockPrefix, roomID, func() error {
		room, ok := c.rooms.Find(roomID)
		if !ok {
			return errors.ErrRoomNotFound
		}
		room.SetPlaying(playing)
		return nil
	})
}
