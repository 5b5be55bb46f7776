package internal

import (
	"log/slog"
	"sync"
	"time"
)

// DisconnectScheduler 以使用者為鍵的延遲任務註冊表。
//
// 系統設計考量：
//
//  1. 用途：傳輸層斷線後排程寬限期任務，寬限期滿才真正移除玩家
//
//  2. 取消語義（冪等）：
//     - 重連時 Cancel(userID)，已觸發或已取消的任務再取消是 no-op
//     - 同一使用者重複 Schedule 會先取消舊任務（只保留最新一筆）
//
//  3. 競態容忍：
//     timer 觸發與 Cancel 之間存在不可避免的競態，
//     因此任務本身必須做新鮮度檢查（玩家是否仍是 DISCONNECTED），
//     而不是依賴取消一定成功。
type DisconnectScheduler struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
	logger *slog.Logger
}

// NewDisconnectScheduler 創建延遲任務註冊表
func NewDisconnectScheduler(logger *slog.Logger) *DisconnectScheduler {
	return &DisconnectScheduler{
		timers: make(map[int64]*time.Timer),
		logger: logger,
	}
}

// Schedule 為使用者排程延遲任務，取代同一使用者既有的待觸發任務
func (s *DisconnectScheduler) Schedule(userID int64, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[userID]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		// 只清除自己的登記：被取代的舊任務不能誤刪新任務
		s.mu.Lock()
		if cur, ok := s.timers[userID]; ok && cur == timer {
			delete(s.timers, userID)
		}
		s.mu.Unlock()

		fn()
	})
	s.timers[userID] = timer

	s.logger.Debug("斷線寬限任務已排程", "user_id", userID, "delay", delay)
}

// Cancel 取消使用者的待觸發任務（冪等）
func (s *DisconnectScheduler) Cancel(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[userID]
	if !ok {
		return
	}
	timer.Stop()
	delete(s.timers, userID)

	s.logger.Debug("斷線寬限任務已取消", "user_id", userID)
}

// Pending 是否有待觸發任務（供測試觀察）
func (s *DisconnectScheduler) Pending(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[userID]
	return ok
}

// Stop 取消所有待觸發任務
func (s *DisconnectScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, userID)
	}
}
