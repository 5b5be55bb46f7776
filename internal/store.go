package internal

import "sync"

// 儲存原語。三份索引都必須支援鎖外的併發讀取（存在性檢查、列表），
// 但寫入一律發生在協調層持有對應分散式鎖之後。
// 單一使用者至多對應一個房間的不變量由協調層協議保證，不是由儲存結構保證。

// RoomStore 房間儲存（roomID → Room）
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[int64]*Room
}

// NewRoomStore 創建房間儲存
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[int64]*Room),
	}
}

// Save 保存房間
func (s *RoomStore) Save(room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
}

// Find 查找房間
func (s *RoomStore) Find(roomID int64) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// Remove 移除房間
func (s *RoomStore) Remove(roomID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// All 取得所有房間的快照列表
func (s *RoomStore) All() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Count 房間數量
func (s *RoomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// MembershipIndex 使用者 → 所在房間的索引（userID → roomID）
//
// 每位使用者在任何時刻至多一筆（協議保證）。
type MembershipIndex struct {
	mu    sync.RWMutex
	rooms map[int64]int64
}

// NewMembershipIndex 創建成員索引
func NewMembershipIndex() *MembershipIndex {
	return &MembershipIndex{
		rooms: make(map[int64]int64),
	}
}

// Put 記錄使用者所在房間
func (idx *MembershipIndex) Put(userID, roomID int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rooms[userID] = roomID
}

// RoomOf 查詢使用者所在房間
func (idx *MembershipIndex) RoomOf(userID int64) (int64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	roomID, ok := idx.rooms[userID]
	return roomID, ok
}

// Remove 移除使用者的成員記錄。只在記錄指向 roomID 時移除，
// 避免清理舊房間時誤刪使用者在新房間的記錄。
func (idx *MembershipIndex) Remove(userID, roomID int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if current, ok := idx.rooms[userID]; ok && current == roomID {
		delete(idx.rooms, userID)
	}
}

// Contains 使用者是否在任何房間內
func (idx *MembershipIndex) Contains(userID int64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.rooms[userID]
	return ok
}

// SessionIndex 傳輸層 session → 房間的索引（sessionID → roomID）
//
// socket 初始化時寫入，傳輸層斷線通知時清除。
type SessionIndex struct {
	mu    sync.RWMutex
	rooms map[string]int64
}

// NewSessionIndex 創建 session 索引
func NewSessionIndex() *SessionIndex {
	return &SessionIndex{
		rooms: make(map[string]int64),
	}
}

// Put 記錄 session 所在房間
func (idx *SessionIndex) Put(sessionID string, roomID int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rooms[sessionID] = roomID
}

// RoomOf 查詢 session 所在房間
func (idx *SessionIndex) RoomOf(sessionID string) (int64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	roomID, ok := idx.rooms[sessionID]
	return roomID, ok
}

// Remove 清除 session 記錄
func (idx *SessionIndex) Remove(sessionID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.rooms, sessionID)
}
