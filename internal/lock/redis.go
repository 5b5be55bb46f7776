package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker 以 Redis 實作 Locker，供多實例部署共享鎖狀態。
//
// 系統設計考量：
//
//  1. 獲取：SET key token NX PX lease
//     - NX：只在鍵不存在時寫入（原子的 test-and-set）
//     - PX：租約以 TTL 實現，持有者崩潰後鎖自動過期
//
//  2. 釋放：Lua 腳本 compare-and-delete
//     問題：GET 再 DEL 兩步之間，租約可能過期、鎖被他人取得，
//     直接 DEL 會誤刪新持有者的鎖
//     方案：Lua 單次原子執行「值相符才刪除」
type RedisLocker struct {
	client        *redis.Client
	releaseScript *redis.Script
}

// Lua 腳本：只在鎖仍由呼叫者持有（值等於 token）時刪除
//
// KEYS[1]: 鎖鍵
// ARGV[1]: 持有者 token
//
// 返回值：
//	1: 已釋放
//	0: 鎖不存在或已易主
var releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
else
    return 0
end
`

// NewRedisLocker 創建 Redis 鎖後端
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:        client,
		releaseScript: redis.NewScript(releaseScript),
	}
}

// TryAcquire 嘗試取得鎖（不等待）
func (l *RedisLocker) TryAcquire(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, token, lease).Result()
}

// Release 只在仍持有時釋放
func (l *RedisLocker) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := l.releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
