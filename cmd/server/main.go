package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-quiz-room/internal"
	"github.com/koopa0/system-design/14-quiz-room/internal/lock"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置檔路徑（YAML，留空使用預設）")
		port       = flag.Int("port", 0, "HTTP 埠號（覆蓋配置檔）")
		logLevel   = flag.String("log-level", "", "日誌級別：debug, info, warn, error")
		logFormat  = flag.String("log-format", "", "日誌格式：text 或 json")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	// 鎖後端：配置了 Redis 就用分散式鎖，否則退回單機記憶體鎖
	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Error("Redis 連線失敗", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		cancel()
		defer client.Close()

		locker = lock.NewRedisLocker(client)
		logger.Info("使用 Redis 分散式鎖", "addr", cfg.Redis.Addr)
	} else {
		locker = lock.NewMemoryLocker()
		logger.Info("使用記憶體鎖（單機模式）")
	}

	// 事件發布：配置了 NATS 就發布到訊息匯流排，否則用記憶體發布器
	var events internal.EventPublisher
	if cfg.NATS.URL != "" {
		conn, err := nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			logger.Error("NATS 連線失敗", "url", cfg.NATS.URL, "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		events = internal.NewNATSPublisher(conn, logger)
		logger.Info("事件發布到 NATS", "url", cfg.NATS.URL)
	} else {
		events = internal.NewMemoryPublisher()
		logger.Info("事件保留在記憶體（未配置 NATS）")
	}

	executor := lock.NewExecutor(locker, cfg.Lock.WaitTime.Std(), cfg.Lock.LeaseTime.Std(), logger)
	quizzes := internal.NewStaticQuizService(internal.DefaultQuizzes())

	hub := internal.NewHub(logger)
	coordinator := internal.NewCoordinator(
		quizzes, hub, events, executor, cfg.Room.DisconnectGrace.Std(), logger)
	hub.Bind(coordinator)

	handler := internal.NewHandler(coordinator, hub, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("伺服器啟動",
			"port", cfg.Server.Port,
			"disconnect_grace", cfg.Room.DisconnectGrace.Std())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("伺服器異常終止", "error", err)
			os.Exit(1)
		}
	}()

	// 優雅關閉
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到關閉信號，開始優雅關閉")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	hub.Stop()
	coordinator.Stop()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("關閉伺服器失敗", "error", err)
		os.Exit(1)
	}
	logger.Info("伺服器已關閉")
}

func newLogger(cfg internal.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
