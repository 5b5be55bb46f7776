package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker 行程內的鎖表，與 RedisLocker 實作相同的租約語義。
//
// 適用場景：
//   - 單實例部署（不需要跨行程互斥）
//   - 測試（不依賴外部服務）
//
// 語義對齊：
//   - 租約過期的鎖視為不存在，可被新的 token 直接取得（強制回收）
//   - Release 比對 token，過期易主後舊持有者的釋放是 no-op
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLease
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker 創建記憶體鎖後端
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryLease),
	}
}

// TryAcquire 嘗試取得鎖（不等待）
func (l *MemoryLocker) TryAcquire(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[key]; ok && time.Now().Before(held.expiresAt) {
		return false, nil
	}

	l.locks[key] = memoryLease{
		token:     token,
		expiresAt: time.Now().Add(lease),
	}
	return true, nil
}

// Release 只在仍持有時釋放
func (l *MemoryLocker) Release(ctx context.Context, key, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.locks[key]
	if !ok || held.token != token {
		return false, nil
	}
	// 過期但尚未被回收：持有者仍可自行清理
	delete(l.locks, key)
	return true, nil
}
