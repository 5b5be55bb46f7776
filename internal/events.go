package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// 領域事件與請求處理分離：協議步驟結尾呼叫 EventPublisher，
// 下游的遊戲開始編排（不在此核心範圍）訂閱這些事件。
// 核心的正確性不依賴訂閱者的行為。

// EventType 房間領域事件類型
type EventType string

const (
	// EventRoomCreated 房間已創建
	EventRoomCreated EventType = "ROOM_CREATED"
	// EventRoomUpdated 房間已更新（成員 / 房主變動）
	EventRoomUpdated EventType = "ROOM_UPDATED"
	// EventRoomDeleted 房間已刪除
	EventRoomDeleted EventType = "ROOM_DELETED"
)

// RoomEvent 房間領域事件
type RoomEvent struct {
	Type       EventType `json:"type"`
	RoomID     int64     `json:"room_id"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher 事件發布介面
type EventPublisher interface {
	Publish(ctx context.Context, event RoomEvent) error
}

// NATSPublisher 以 NATS 發布房間事件。
//
// Subject 命名：rooms.{room_id}.{event_type}
// 保證同一房間的事件在同一 subject 前綴下有序。
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher 創建 NATS 事件發布器
func NewNATSPublisher(conn *nats.Conn, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish 發布事件
func (p *NATSPublisher) Publish(_ context.Context, event RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	subject := fmt.Sprintf("rooms.%d.%s", event.RoomID, event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("發布事件失敗: %w", err)
	}

	p.logger.Debug("事件已發布", "subject", subject)
	return nil
}

// MemoryPublisher 行程內事件記錄器，供單實例部署與測試使用
type MemoryPublisher struct {
	mu     sync.Mutex
	events []RoomEvent
}

// NewMemoryPublisher 創建行程內事件記錄器
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 記錄事件
func (p *MemoryPublisher) Publish(_ context.Context, event RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events 取得已記錄事件的快照
func (p *MemoryPublisher) Events() []RoomEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RoomEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventsOfType 取得指定類型的事件
func (p *MemoryPublisher) EventsOfType(eventType EventType) []RoomEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []RoomEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
