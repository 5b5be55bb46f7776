// Package quizroom 提供了一個有狀態的多人問答遊戲房間協調服務。
//
// 實現了一個支援多房間、多玩家的問答遊戲進房管理核心，包含以下核心功能：
//
// 房間生命週期管理
//
// 提供完整的房間准入與成員管理：
//   - 房間創建與銷毀（最後一位玩家離開時自動刪除）
//   - 玩家進入、退出與房主轉移
//   - 斷線寬限期與重連恢復
//   - 每位使用者同時只屬於一個房間
//
// # 分散式互斥
//
// 正確性依賴跨 user / room 兩個獨立鍵空間的分散式鎖：
//   - user 鎖：序列化同一使用者的所有操作（多分頁同時登入也安全）
//   - room 鎖：序列化同一房間的所有變更
//   - 固定獲取順序（先 user 後 room），避免循環等待造成死鎖
//   - 有界等待（5 秒）與有界租約（3 秒），租約過期可被強制回收
//
// 鎖服務抽象為 Locker 介面，提供兩種後端：
//   - Redis（SET NX PX + Lua 比較刪除，適用多實例部署）
//   - 行程內記憶體鎖表（單實例部署與測試）
//
// 連線狀態機
//
// 每位玩家帶有連線狀態（CONNECTED / DISCONNECTED）：
//   - 傳輸層斷線時標記 DISCONNECTED，並排程寬限期任務
//   - 寬限期內重連則取消任務並恢復 CONNECTED
//   - 寬限期滿仍斷線才真正移除（遊戲中的房間只做軟移除，保留計分資料）
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Handler 層：處理 HTTP 請求與回應
//   - Coordinator 層：實作進房 / 退房 / 斷線協議
//   - Lock 層：封裝分散式鎖的獲取與釋放
//   - Room 層：聚合根，自行守護容量與房主不變量
//   - WebSocket 層：傳輸層連線生命週期與訊息廣播
//
// 每層都有明確的職責邊界，透過介面進行交互，便於測試與擴展。
//
// 使用範例
//
// 啟動服務器：
//
//	executor := lock.NewExecutor(lock.NewMemoryLocker(), 0, 0, logger)
//	quizzes := internal.NewStaticQuizService(internal.DefaultQuizzes())
//	events := internal.NewMemoryPublisher()
//
//	hub := internal.NewHub(logger)
//	coordinator := internal.NewCoordinator(quizzes, hub, events, executor, 0, logger)
//	hub.Bind(coordinator)
//
//	handler := internal.NewHandler(coordinator, hub, logger)
//	log.Fatal(http.ListenAndServe(":8080", handler.Routes()))
package quizroom
