package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration time.Duration 的 YAML 包裝，支援 "5s"、"500ms" 這類字串
type Duration time.Duration

// Std 轉回標準 time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML 實現 yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config 服務配置
type Config struct {
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	NATS   NATSConfig   `yaml:"nats"`
	Lock   LockConfig   `yaml:"lock"`
	Room   RoomConfig   `yaml:"room"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig HTTP 伺服器配置
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// RedisConfig Redis 連線配置（分散式鎖後端；留空退回記憶體鎖）
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig NATS 連線配置（事件發布；留空退回記憶體發布器）
type NATSConfig struct {
	URL string `yaml:"url"`
}

// LockConfig 分散式鎖參數
type LockConfig struct {
	WaitTime  Duration `yaml:"wait_time"`
	LeaseTime Duration `yaml:"lease_time"`
}

// RoomConfig 房間協調參數
type RoomConfig struct {
	DisconnectGrace Duration `yaml:"disconnect_grace"`
}

// LogConfig 日誌配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig 預設配置
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Lock: LockConfig{
			WaitTime:  Duration(5 * time.Second),
			LeaseTime: Duration(3 * time.Second),
		},
		Room: RoomConfig{
			DisconnectGrace: Duration(DefaultDisconnectGrace),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig 從 YAML 檔案載入配置，path 為空時回傳預設配置。
// 未指定的欄位保留預設值。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return cfg, fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Room.DisconnectGrace <= 0 {
		cfg.Room.DisconnectGrace = Duration(DefaultDisconnectGrace)
	}
	return cfg, nil
}
