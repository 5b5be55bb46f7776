package internal

import "fmt"

// 對外通知是 fire-and-forget：本核心呼叫 MessageSender 後即視為送達，
// 失敗不重試、不影響協議本身的正確性。

// MessageType 訊息類型
type MessageType string

const (
	// MsgGameSetting 遊戲設定（個人）
	MsgGameSetting MessageType = "GAME_SETTING"
	// MsgRoomSetting 房間設定（廣播）
	MsgRoomSetting MessageType = "ROOM_SETTING"
	// MsgPlayerList 玩家列表（廣播）
	MsgPlayerList MessageType = "PLAYER_LIST"
	// MsgSystemNotice 系統通知（進房 / 退房 / 重連）
	MsgSystemNotice MessageType = "SYSTEM_NOTICE"
	// MsgExitSuccess 退房成功（個人）
	MsgExitSuccess MessageType = "EXIT_SUCCESS"
	// MsgRankUpdate 排名更新（重連回放）
	MsgRankUpdate MessageType = "RANK_UPDATE"
	// MsgGameStart 遊戲開始資料（重連回放）
	MsgGameStart MessageType = "GAME_START"
)

// NoticeType 系統通知的事由
type NoticeType string

const (
	// NoticeEnter 玩家進房
	NoticeEnter NoticeType = "ENTER"
	// NoticeExit 玩家退房
	NoticeExit NoticeType = "EXIT"
	// NoticeReconnect 玩家重連（廣播）
	NoticeReconnect NoticeType = "RECONNECT"
	// NoticeReconnectPrivate 玩家重連（個人提示）
	NoticeReconnectPrivate NoticeType = "RECONNECT_PRIVATE_NOTICE"
)

// MessageSender 通知傳送介面。
// 傳輸層（WebSocket Hub）實作它；測試以記錄器替身實作。
type MessageSender interface {
	// SendToRoom 廣播給房間內所有已連線的訂閱者
	SendToRoom(roomID int64, msgType MessageType, payload any)
	// SendToUser 傳送給指定使用者
	SendToUser(userID int64, msgType MessageType, payload any)
}

// SystemNoticePayload 系統通知內容
type SystemNoticePayload struct {
	Type    NoticeType `json:"type"`
	Message string     `json:"message"`
}

// playerNotice 組合玩家事件通知
func playerNotice(nickname string, noticeType NoticeType) SystemNoticePayload {
	var message string
	switch noticeType {
	case NoticeEnter:
		message = fmt.Sprintf("%s 進入了房間", nickname)
	case NoticeExit:
		message = fmt.Sprintf("%s 離開了房間", nickname)
	case NoticeReconnect:
		message = fmt.Sprintf("%s 重新連線", nickname)
	case NoticeReconnectPrivate:
		message = "已重新連線，正在恢復遊戲狀態"
	}
	return SystemNoticePayload{Type: noticeType, Message: message}
}

// GameSettingPayload 遊戲設定通知內容
type GameSettingPayload struct {
	QuizID        int64  `json:"quiz_id"`
	QuizTitle     string `json:"quiz_title"`
	QuestionCount int    `json:"question_count"`
	Round         int    `json:"round"`
	TimeLimitSec  int    `json:"time_limit_sec"`
}

// PlayerListPayload 玩家列表通知內容
type PlayerListPayload struct {
	Players []PlayerView `json:"players"`
}

// ExitSuccessPayload 退房成功通知內容
type ExitSuccessPayload struct {
	Success bool `json:"success"`
}

// RankEntry 排名項目
type RankEntry struct {
	UserID   int64           `json:"user_id"`
	Nickname string          `json:"nickname"`
	State    ConnectionState `json:"state"`
}

// RankUpdatePayload 排名更新通知內容（重連回放；計分本身不在此核心範圍）
type RankUpdatePayload struct {
	Ranks []RankEntry `json:"ranks"`
}

// GameStartPayload 遊戲開始資料（重連回放）
type GameStartPayload struct {
	QuizID    int64      `json:"quiz_id"`
	Questions []Question `json:"questions"`
}
