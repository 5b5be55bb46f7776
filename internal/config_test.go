package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Lock.WaitTime.Std())
	assert.Equal(t, 3*time.Second, cfg.Lock.LeaseTime.Std())
	assert.Equal(t, DefaultDisconnectGrace, cfg.Room.DisconnectGrace.Std())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
redis:
  addr: localhost:6379
nats:
  url: nats://localhost:4222
lock:
  wait_time: 2s
  lease_time: 1s
room:
  disconnect_grace: 15s
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 2*time.Second, cfg.Lock.WaitTime.Std())
	assert.Equal(t, time.Second, cfg.Lock.LeaseTime.Std())
	assert.Equal(t, 15*time.Second, cfg.Room.DisconnectGrace.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 3000\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	// 未指定的欄位沿用預設
	assert.Equal(t, 5*time.Second, cfg.Lock.WaitTime.Std())
	assert.Equal(t, DefaultDisconnectGrace, cfg.Room.DisconnectGrace.Std())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("檔案不存在", func(t *testing.T) {
		_, err := LoadConfig("/nonexistent/config.yaml")
		assert.Error(t, err)
	})

	t.Run("格式錯誤", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("無效的時間格式", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dur.yaml")
		require.NoError(t, os.WriteFile(path, []byte("lock:\n  wait_time: banana\n"), 0o644))

		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("埠號超出範圍", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "port.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 99999\n"), 0o644))

		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
