package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-quiz-room/internal/lock"
	"github.com/koopa0/system-design/14-quiz-room/pkg/errors"
)

// recordedMessage 記錄一筆送出的通知
type recordedMessage struct {
	RoomID  int64
	UserID  int64
	Type    MessageType
	Payload any
}

// recorderSender MessageSender 的測試替身
type recorderSender struct {
	mu       sync.Mutex
	messages []recordedMessage
}

func (r *recorderSender) SendToRoom(roomID int64, msgType MessageType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, recordedMessage{RoomID: roomID, Type: msgType, Payload: payload})
}

func (r *recorderSender) SendToUser(userID int64, msgType MessageType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, recordedMessage{UserID: userID, Type: msgType, Payload: payload})
}

func (r *recorderSender) roomMessages(roomID int64, msgType MessageType) []recordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedMessage
	for _, m := range r.messages {
		if m.RoomID == roomID && m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorderSender) userMessages(userID int64, msgType MessageType) []recordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedMessage
	for _, m := range r.messages {
		if m.UserID == userID && m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorderSender) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

type testEnv struct {
	coordinator *Coordinator
	sender      *recorderSender
	events      *MemoryPublisher
}

// newTestEnv 組裝測試用協調器（記憶體鎖、記憶體事件、短寬限期）
func newTestEnv(t *testing.T, grace time.Duration) *testEnv {
	t.Helper()

	logger := discardLogger()
	sender := &recorderSender{}
	events := NewMemoryPublisher()
	executor := lock.NewExecutor(lock.NewMemoryLocker(), 2*time.Second, 2*time.Second, logger)
	quizzes := NewStaticQuizService(DefaultQuizzes())

	c := NewCoordinator(quizzes, sender, events, executor, grace, logger)
	t.Cleanup(c.Stop)

	return &testEnv{coordinator: c, sender: sender, events: events}
}

var (
	alice = Principal{UserID: 100, Nickname: "愛麗絲"}
	bob   = Principal{UserID: 101, Nickname: "鮑伯"}
	carol = Principal{UserID: 102, Nickname: "卡蘿"}
)

func createRoom(t *testing.T, env *testEnv, p Principal, maxPlayers int) int64 {
	t.Helper()
	roomID, err := env.coordinator.CreateRoom(context.Background(), CreateRoomRequest{
		Name:       "測試房",
		MaxPlayers: maxPlayers,
	}, p)
	require.NoError(t, err)
	return roomID
}

// attach 進房 + 建立連線（完整加入流程），回傳 session ID
func attach(t *testing.T, env *testEnv, roomID int64, p Principal, sessionID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.coordinator.EnterRoom(ctx, roomID, "", p))
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, sessionID, p))
}

func TestCoordinator_CreateRoom(t *testing.T) {
	env := newTestEnv(t, time.Second)
	ctx := context.Background()

	roomID, err := env.coordinator.CreateRoom(ctx, CreateRoomRequest{
		Name:       "星期五之夜",
		MaxPlayers: 4,
		Round:      5,
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), roomID)

	state, err := env.coordinator.RoomState(roomID)
	require.NoError(t, err)
	assert.Equal(t, "星期五之夜", state.Name)
	assert.Equal(t, alice.UserID, state.HostID)
	assert.Len(t, state.Players, 1)
	assert.Equal(t, 5, state.Game.Round)
	// 預設綁定編號最小的題庫
	assert.Equal(t, int64(1), state.Game.QuizID)

	created := env.events.EventsOfType(EventRoomCreated)
	require.Len(t, created, 1)
	assert.Equal(t, roomID, created[0].RoomID)

	// 房間 ID 單調遞增
	roomID2, err := env.coordinator.CreateRoom(ctx, CreateRoomRequest{Name: "二號房", MaxPlayers: 4}, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), roomID2)
}

func TestCoordinator_CreateRoom_ExitsPreviousRoom(t *testing.T) {
	env := newTestEnv(t, time.Second)
	ctx := context.Background()

	first := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, first, "s1", alice))

	// 同一使用者再開房，會先退出舊房；愛麗絲是唯一玩家，舊房銷毀
	second, err := env.coordinator.CreateRoom(ctx, CreateRoomRequest{Name: "新房", MaxPlayers: 4}, alice)
	require.NoError(t, err)

	_, err = env.coordinator.RoomState(first)
	assert.ErrorIs(t, err, errors.ErrRoomNotFound)

	state, err := env.coordinator.RoomState(second)
	require.NoError(t, err)
	assert.Len(t, state.Players, 1)

	deleted := env.events.EventsOfType(EventRoomDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, first, deleted[0].RoomID)
}

func TestCoordinator_EnterRoom(t *testing.T) {
	t.Run("正常進房", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)

		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))

		state, err := env.coordinator.RoomState(roomID)
		require.NoError(t, err)
		assert.Len(t, state.Players, 2)
	})

	t.Run("房間不存在", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		err := env.coordinator.EnterRoom(context.Background(), 999, "", bob)
		assert.ErrorIs(t, err, errors.ErrRoomNotFound)
	})

	t.Run("重複進房是 no-op", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)

		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))

		state, err := env.coordinator.RoomState(roomID)
		require.NoError(t, err)
		assert.Len(t, state.Players, 2)
	})

	t.Run("人數已滿", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 2)
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))

		err := env.coordinator.EnterRoom(context.Background(), roomID, "", carol)
		assert.ErrorIs(t, err, errors.ErrRoomUserLimitReached)
	})

	t.Run("密碼錯誤", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID, err := env.coordinator.CreateRoom(context.Background(), CreateRoomRequest{
			Name:       "私房",
			MaxPlayers: 4,
			Password:   "secret",
		}, alice)
		require.NoError(t, err)

		err = env.coordinator.EnterRoom(context.Background(), roomID, "wrong", bob)
		assert.ErrorIs(t, err, errors.ErrWrongPassword)

		assert.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "secret", bob))
	})

	t.Run("滿房優先於密碼錯誤", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID, err := env.coordinator.CreateRoom(context.Background(), CreateRoomRequest{
			Name:       "私房",
			MaxPlayers: 2,
			Password:   "secret",
		}, alice)
		require.NoError(t, err)
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "secret", bob))

		err = env.coordinator.EnterRoom(context.Background(), roomID, "wrong", carol)
		assert.ErrorIs(t, err, errors.ErrRoomUserLimitReached)
	})

	t.Run("遊戲進行中封房", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)
		require.NoError(t, env.coordinator.SetPlaying(context.Background(), roomID, true))

		err := env.coordinator.EnterRoom(context.Background(), roomID, "", bob)
		assert.ErrorIs(t, err, errors.ErrRoomInProgress)
	})
}

// 單房成員不變量：進新房會先退出舊房
func TestCoordinator_EnterRoom_SwitchesRoom(t *testing.T) {
	env := newTestEnv(t, time.Second)
	ctx := context.Background()

	roomA := createRoom(t, env, alice, 4)
	roomB := createRoom(t, env, bob, 4)

	attach(t, env, roomA, carol, "s-carol")

	// 卡蘿轉進 B 房，必須從 A 房消失
	require.NoError(t, env.coordinator.EnterRoom(ctx, roomB, "", carol))

	stateA, err := env.coordinator.RoomState(roomA)
	require.NoError(t, err)
	for _, p := range stateA.Players {
		assert.NotEqual(t, carol.UserID, p.ID)
	}

	stateB, err := env.coordinator.RoomState(roomB)
	require.NoError(t, err)
	assert.Len(t, stateB.Players, 2)
}

func TestCoordinator_ExitRoom(t *testing.T) {
	t.Run("非成員", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)

		err := env.coordinator.ExitRoom(context.Background(), roomID, bob)
		assert.ErrorIs(t, err, errors.ErrPlayerNotFound)
	})

	t.Run("房間不存在", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		err := env.coordinator.ExitRoom(context.Background(), 999, alice)
		assert.ErrorIs(t, err, errors.ErrRoomNotFound)
	})

	t.Run("一般退房", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))
		env.sender.reset()

		require.NoError(t, env.coordinator.ExitRoom(context.Background(), roomID, bob))

		state, err := env.coordinator.RoomState(roomID)
		require.NoError(t, err)
		assert.Len(t, state.Players, 1)

		// 個人退房確認 + 廣播通知與玩家列表
		assert.Len(t, env.sender.userMessages(bob.UserID, MsgExitSuccess), 1)
		assert.Len(t, env.sender.roomMessages(roomID, MsgSystemNotice), 1)
		assert.Len(t, env.sender.roomMessages(roomID, MsgPlayerList), 1)
	})

	t.Run("最後一人退房銷毀房間", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)

		require.NoError(t, env.coordinator.ExitRoom(context.Background(), roomID, alice))

		_, err := env.coordinator.RoomState(roomID)
		assert.ErrorIs(t, err, errors.ErrRoomNotFound)

		deleted := env.events.EventsOfType(EventRoomDeleted)
		require.Len(t, deleted, 1)
		assert.Equal(t, roomID, deleted[0].RoomID)
	})

	t.Run("房主退房轉移給最早加入者", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))
		time.Sleep(5 * time.Millisecond) // JoinedAt 需有先後
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", carol))

		require.NoError(t, env.coordinator.ExitRoom(context.Background(), roomID, alice))

		state, err := env.coordinator.RoomState(roomID)
		require.NoError(t, err)
		assert.Equal(t, bob.UserID, state.HostID)
		assert.Len(t, state.Players, 2)
	})

	t.Run("退房後可再進房", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))

		require.NoError(t, env.coordinator.ExitRoom(context.Background(), roomID, bob))
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))

		state, err := env.coordinator.RoomState(roomID)
		require.NoError(t, err)
		assert.Len(t, state.Players, 2)
	})
}

func TestCoordinator_InitializeSocket(t *testing.T) {
	t.Run("未進房先連線被拒", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)

		err := env.coordinator.InitializeSocket(context.Background(), roomID, "s1", bob)
		assert.ErrorIs(t, err, errors.ErrRoomEntryRequired)
	})

	t.Run("房間不存在", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		err := env.coordinator.InitializeSocket(context.Background(), 999, "s1", alice)
		assert.ErrorIs(t, err, errors.ErrRoomNotFound)
	})

	t.Run("新連線的訊息序列", func(t *testing.T) {
		env := newTestEnv(t, time.Second)
		roomID := createRoom(t, env, alice, 4)
		require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))
		env.sender.reset()

		require.NoError(t, env.coordinator.InitializeSocket(context.Background(), roomID, "s-bob", bob))

		// 個人：遊戲設定
		personal := env.sender.userMessages(bob.UserID, MsgGameSetting)
		require.Len(t, personal, 1)
		setting, ok := personal[0].Payload.(GameSettingPayload)
		require.True(t, ok)
		assert.Equal(t, int64(1), setting.QuizID)
		assert.NotEmpty(t, setting.QuizTitle)
		assert.Positive(t, setting.QuestionCount)

		// 廣播：房間設定、玩家列表、進房通知
		assert.Len(t, env.sender.roomMessages(roomID, MsgRoomSetting), 1)
		assert.Len(t, env.sender.roomMessages(roomID, MsgPlayerList), 1)

		notices := env.sender.roomMessages(roomID, MsgSystemNotice)
		require.Len(t, notices, 1)
		notice, ok := notices[0].Payload.(SystemNoticePayload)
		require.True(t, ok)
		assert.Equal(t, NoticeEnter, notice.Type)

		updated := env.events.EventsOfType(EventRoomUpdated)
		assert.NotEmpty(t, updated)
	})
}

func TestCoordinator_DisconnectAndGraceExpiry(t *testing.T) {
	env := newTestEnv(t, 50*time.Millisecond)
	ctx := context.Background()

	roomID := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, "s-alice", alice))
	attach(t, env, roomID, bob, "s-bob")

	env.coordinator.HandleTransportDisconnect(ctx, "s-bob", bob)

	// 寬限期內仍是成員，僅標記斷線
	state, err := env.coordinator.GetConnectionState(bob.UserID, roomID)
	require.NoError(t, err)
	assert.Equal(t, Disconnected, state)

	// 寬限期滿後被硬移除
	require.Eventually(t, func() bool {
		roomState, stateErr := env.coordinator.RoomState(roomID)
		if stateErr != nil {
			return false
		}
		return len(roomState.Players) == 1
	}, time.Second, 10*time.Millisecond)

	_, err = env.coordinator.GetConnectionState(bob.UserID, roomID)
	assert.ErrorIs(t, err, errors.ErrPlayerNotFound)
}

func TestCoordinator_DisconnectLastPlayerDeletesRoom(t *testing.T) {
	env := newTestEnv(t, 30*time.Millisecond)
	ctx := context.Background()

	roomID := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, "s-alice", alice))

	env.coordinator.HandleTransportDisconnect(ctx, "s-alice", alice)

	require.Eventually(t, func() bool {
		_, err := env.coordinator.RoomState(roomID)
		return errors.IsRoomNotFound(err)
	}, time.Second, 10*time.Millisecond)

	assert.Len(t, env.events.EventsOfType(EventRoomDeleted), 1)
}

func TestCoordinator_ReconnectWithinGrace(t *testing.T) {
	env := newTestEnv(t, 80*time.Millisecond)
	ctx := context.Background()

	roomID := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, "s-alice", alice))
	attach(t, env, roomID, bob, "s-bob-1")

	env.coordinator.HandleTransportDisconnect(ctx, "s-bob-1", bob)
	env.sender.reset()

	// 寬限期內帶新 session 重連
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, "s-bob-2", bob))

	state, err := env.coordinator.GetConnectionState(bob.UserID, roomID)
	require.NoError(t, err)
	assert.Equal(t, Connected, state)

	// 重連回放（等待階段）：廣播重連通知 + 個人房間設定 / 玩家列表 / 遊戲設定
	notices := env.sender.roomMessages(roomID, MsgSystemNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeReconnect, notices[0].Payload.(SystemNoticePayload).Type)

	assert.Len(t, env.sender.userMessages(bob.UserID, MsgRoomSetting), 1)
	assert.Len(t, env.sender.userMessages(bob.UserID, MsgPlayerList), 1)
	assert.Len(t, env.sender.userMessages(bob.UserID, MsgGameSetting), 1)

	// 寬限期任務已取消：玩家不會被移除
	time.Sleep(150 * time.Millisecond)
	roomState, err := env.coordinator.RoomState(roomID)
	require.NoError(t, err)
	assert.Len(t, roomState.Players, 2)
}

func TestCoordinator_ReconnectDuringGame_ReplaysGameState(t *testing.T) {
	env := newTestEnv(t, 200*time.Millisecond)
	ctx := context.Background()

	roomID := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, "s-alice", alice))
	attach(t, env, roomID, bob, "s-bob-1")
	require.NoError(t, env.coordinator.SetPlaying(ctx, roomID, true))

	env.coordinator.HandleTransportDisconnect(ctx, "s-bob-1", bob)
	env.sender.reset()

	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, "s-bob-2", bob))

	// 遊戲中重連：個人收到私有提示、排名與題目資料
	private := env.sender.userMessages(bob.UserID, MsgSystemNotice)
	require.Len(t, private, 1)
	assert.Equal(t, NoticeReconnectPrivate, private[0].Payload.(SystemNoticePayload).Type)

	ranks := env.sender.userMessages(bob.UserID, MsgRankUpdate)
	require.Len(t, ranks, 1)
	assert.Len(t, ranks[0].Payload.(RankUpdatePayload).Ranks, 2)

	start := env.sender.userMessages(bob.UserID, MsgGameStart)
	require.Len(t, start, 1)
	payload := start[0].Payload.(GameStartPayload)
	assert.Equal(t, int64(1), payload.QuizID)
	assert.NotEmpty(t, payload.Questions)
}

// 遊戲中寬限期滿：軟移除，玩家留在房間但標記斷線、失去成員登記
func TestCoordinator_GraceExpiryDuringGame_SoftRemoval(t *testing.T) {
	env := newTestEnv(t, 30*time.Millisecond)
	ctx := context.Background()

	roomID := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, "s-alice", alice))
	attach(t, env, roomID, bob, "s-bob")
	require.NoError(t, env.coordinator.SetPlaying(ctx, roomID, true))

	env.coordinator.HandleTransportDisconnect(ctx, "s-bob", bob)

	// 玩家保留在房間內（遊戲資料仍需引用），但可再進其他房
	require.Eventually(t, func() bool {
		state, err := env.coordinator.GetConnectionState(bob.UserID, roomID)
		return err == nil && state == Disconnected
	}, time.Second, 10*time.Millisecond)

	time.Sleep(80 * time.Millisecond)

	roomState, err := env.coordinator.RoomState(roomID)
	require.NoError(t, err)
	assert.Len(t, roomState.Players, 2, "遊戲中不硬移除")

	// 成員登記已清除：鮑伯可直接開新房而不觸發退房協議
	newRoom, err := env.coordinator.CreateRoom(ctx, CreateRoomRequest{Name: "新房", MaxPlayers: 4}, bob)
	require.NoError(t, err)
	assert.NotEqual(t, roomID, newRoom)
}

// 遊戲中斷線的玩家在寬限期內轉進新房（軟移除已完成）：
// 稍後觸發的寬限期任務不得對舊房重複廣播退房通知
func TestCoordinator_GraceAfterSoftRemoval_NoRebroadcast(t *testing.T) {
	env := newTestEnv(t, 80*time.Millisecond)
	ctx := context.Background()

	roomA := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomA, "s-alice", alice))
	attach(t, env, roomA, bob, "s-bob")
	require.NoError(t, env.coordinator.SetPlaying(ctx, roomA, true))

	env.coordinator.HandleTransportDisconnect(ctx, "s-bob", bob)

	// 寬限期內轉進新房：退房協議在此對 A 房做軟移除並廣播一次
	roomB := createRoom(t, env, carol, 4)
	require.NoError(t, env.coordinator.EnterRoom(ctx, roomB, "", bob))

	notices := len(env.sender.roomMessages(roomA, MsgSystemNotice))
	lists := len(env.sender.roomMessages(roomA, MsgPlayerList))

	// 寬限期任務觸發後，A 房不得再收到任何廣播
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, notices, len(env.sender.roomMessages(roomA, MsgSystemNotice)))
	assert.Equal(t, lists, len(env.sender.roomMessages(roomA, MsgPlayerList)))

	// 玩家仍留在 A 房（遊戲資料引用）且標記斷線
	state, err := env.coordinator.GetConnectionState(bob.UserID, roomA)
	require.NoError(t, err)
	assert.Equal(t, Disconnected, state)
}

func TestCoordinator_DisconnectUnknownSession(t *testing.T) {
	env := newTestEnv(t, 30*time.Millisecond)
	ctx := context.Background()

	roomID := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomID, "s-alice", alice))

	// 未知 session 的斷線通知是 no-op
	env.coordinator.HandleTransportDisconnect(ctx, "s-ghost", alice)

	time.Sleep(80 * time.Millisecond)
	state, err := env.coordinator.RoomState(roomID)
	require.NoError(t, err)
	assert.Len(t, state.Players, 1)
}

// 舊連線斷線通知晚於新連線建立時，不能把新連線標成斷線後移除
func TestCoordinator_StaleDisconnectAfterNewSession(t *testing.T) {
	env := newTestEnv(t, 30*time.Millisecond)
	ctx := context.Background()

	roomA := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomA, "s-alice", alice))
	attach(t, env, roomA, bob, "s-bob-old")

	// 鮑伯換到 B 房並建立新連線
	roomB := createRoom(t, env, carol, 4)
	require.NoError(t, env.coordinator.InitializeSocket(ctx, roomB, "s-carol", carol))
	attach(t, env, roomB, bob, "s-bob-new")

	// 舊連線這時才斷：session 指向 A 房，但鮑伯已登記在 B 房
	env.coordinator.HandleTransportDisconnect(ctx, "s-bob-old", bob)

	time.Sleep(80 * time.Millisecond)

	state, err := env.coordinator.GetConnectionState(bob.UserID, roomB)
	require.NoError(t, err)
	assert.Equal(t, Connected, state)

	roomState, err := env.coordinator.RoomState(roomB)
	require.NoError(t, err)
	assert.Len(t, roomState.Players, 2)
}

func TestCoordinator_GetAllRooms(t *testing.T) {
	env := newTestEnv(t, time.Second)

	assert.Empty(t, env.coordinator.GetAllRooms())

	createRoom(t, env, alice, 4)
	createRoom(t, env, bob, 2)

	rooms := env.coordinator.GetAllRooms()
	require.Len(t, rooms, 2)
	for _, room := range rooms {
		assert.NotEmpty(t, room.QuizTitle)
		assert.Positive(t, room.QuestionCount)
	}
}

func TestCoordinator_Stats(t *testing.T) {
	env := newTestEnv(t, time.Second)

	roomID := createRoom(t, env, alice, 4)
	require.NoError(t, env.coordinator.EnterRoom(context.Background(), roomID, "", bob))
	require.NoError(t, env.coordinator.SetPlaying(context.Background(), roomID, true))

	stats := env.coordinator.Stats()
	assert.Equal(t, 1, stats["total_rooms"])
	assert.Equal(t, 2, stats["total_players"])
	assert.Equal(t, 1, stats["playing_rooms"])
}
