// Package lock 實作具名、帶租約的分散式互斥鎖。
//
// 系統設計問題：
//   多個請求執行緒（甚至多個服務實例）同時操作同一個房間或同一位使用者時，
//   如何保證臨界區互斥，又不因持有者崩潰而永久卡死？
//
// 核心挑戰：
//   1. 有界等待：獲取鎖最多等 5 秒，超時即失敗（不能無限排隊）
//   2. 有界租約：持有鎖最多 3 秒，租約過期可被其他請求強制回收
//   3. 安全釋放：租約過期後鎖可能已易主，絕不能釋放不屬於自己的鎖
//   4. 可取消：等待期間 context 取消要立即返回，並回傳取消訊號
//
// 設計方案：
//   ✅ Locker 介面 - Redis 後端（多實例）與記憶體後端（單實例/測試）可互換
//   ✅ Owner token - 每次獲取產生唯一 token，釋放時比對（compare-and-delete）
//   ✅ 輪詢重試 - 短間隔重試直到等待超時，等待可被 context 取消
//
// 已知取捨：
//   租約過期後臨界區若還沒執行完，鎖會被回收、出現併發修改。
//   正確性依賴臨界區足夠短（遠小於租約），而非依賴租約本身。
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/system-design/14-quiz-room/pkg/errors"
)

// 鎖鍵空間前綴。user 與 room 是兩個獨立的鍵空間，
// 數值相同的 user 鎖與 room 鎖不會互相碰撞。
const (
	// UserLockPrefix 以使用者 ID 為範圍的鎖
	UserLockPrefix = "user"
	// RoomLockPrefix 以房間 ID 為範圍的鎖
	RoomLockPrefix = "room"
)

const (
	// DefaultWaitTime 獲取鎖的最長等待時間
	DefaultWaitTime = 5 * time.Second
	// DefaultLeaseTime 鎖的租約時間
	DefaultLeaseTime = 3 * time.Second

	// retryInterval 獲取失敗後的重試間隔
	retryInterval = 20 * time.Millisecond
	// releaseTimeout 釋放鎖的獨立超時（不受呼叫端 context 影響）
	releaseTimeout = time.Second
)

// lockKeyFormat 鎖鍵格式，與 Redis 上的既有鍵相容
const lockKeyFormat = "lock:%s:{%d}"

// Locker 單次鎖操作的後端介面。
//
// TryAcquire 是一次性的嘗試（不等待）；等待與重試由 Executor 負責。
// Release 必須是 compare-and-delete：只在鎖仍由 token 持有時刪除。
type Locker interface {
	TryAcquire(ctx context.Context, key, token string, lease time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) (bool, error)
}

// Executor 包裝鎖的「獲取 → 執行 → 釋放」完整生命週期。
//
// 使用方式：
//
//	err := executor.WithLock(ctx, lock.UserLockPrefix, userID, func() error {
//	    // 臨界區
//	    return nil
//	})
//
// 釋放保證在所有退出路徑執行（成功、錯誤、panic 由上層 recover），
// 且只在仍持有鎖時釋放。
type Executor struct {
	locker Locker
	wait   time.Duration
	lease  time.Duration
	logger *slog.Logger
}

// NewExecutor 創建鎖執行器。wait 或 lease 為零時使用預設值。
func NewExecutor(locker Locker, wait, lease time.Duration, logger *slog.Logger) *Executor {
	if wait <= 0 {
		wait = DefaultWaitTime
	}
	if lease <= 0 {
		lease = DefaultLeaseTime
	}
	return &Executor{
		locker: locker,
		wait:   wait,
		lease:  lease,
		logger: logger,
	}
}

// FormatKey 組合鎖鍵
func FormatKey(prefix string, key int64) string {
	return fmt.Sprintf(lockKeyFormat, prefix, key)
}

// WithLock 在 (prefix, key) 鎖的保護下執行 fn。
//
// 錯誤語義：
//   - 等待超過 wait 仍未獲取 → ErrLockAcquisitionFailed
//   - 等待期間 context 取消 → ErrLockInterrupted（包裝 ctx.Err()）
//   - fn 的錯誤原樣回傳
func (e *Executor) WithLock(ctx context.Context, prefix string, key int64, fn func() error) error {
	lockKey := FormatKey(prefix, key)
	token := uuid.NewString()

	if err := e.acquire(ctx, lockKey, token); err != nil {
		return err
	}
	e.logger.Debug("鎖已獲取", "key", lockKey)

	defer e.release(lockKey, token)

	return fn()
}

// WithLockValue 同 WithLock，但臨界區回傳值。
func WithLockValue[T any](ctx context.Context, e *Executor, prefix string, key int64, fn func() (T, error)) (T, error) {
	var result T
	err := e.WithLock(ctx, prefix, key, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// acquire 有界等待直到取得鎖
func (e *Executor) acquire(ctx context.Context, lockKey, token string) error {
	deadline := time.Now().Add(e.wait)

	for {
		acquired, err := e.locker.TryAcquire(ctx, lockKey, token, e.lease)
		if err != nil {
			// context 取消會以後端錯誤形式浮出，統一轉為 LockInterrupted
			if ctx.Err() != nil {
				return errors.Wrap(ctx.Err(), errors.ErrCodeLockInterrupted, "lock wait interrupted")
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "lock backend error")
		}
		if acquired {
			return nil
		}

		if time.Now().After(deadline) {
			e.logger.Warn("鎖獲取失敗", "key", lockKey)
			return errors.ErrLockAcquisitionFailed.WithDetails(lockKey)
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrCodeLockInterrupted, "lock wait interrupted")
		case <-time.After(retryInterval):
		}
	}
}

// release 釋放鎖。使用獨立 context：呼叫端取消不應阻止釋放。
func (e *Executor) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	released, err := e.locker.Release(ctx, lockKey, token)
	if err != nil {
		e.logger.Error("釋放鎖失敗", "key", lockKey, "error", err)
		return
	}
	if !released {
		// 租約已過期且鎖被他人回收，不做任何事
		e.logger.Warn("鎖已易主，跳過釋放", "key", lockKey)
		return
	}
	e.logger.Debug("鎖已釋放", "key", lockKey)
}
