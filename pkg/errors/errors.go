// Package errors 提供應用程式錯誤處理
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeRoomNotFound 房間不存在
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	// ErrCodePlayerNotFound 玩家不存在
	ErrCodePlayerNotFound = "PLAYER_NOT_FOUND"
	// ErrCodeRoomInProgress 遊戲進行中，無法加入
	ErrCodeRoomInProgress = "ROOM_GAME_IN_PROGRESS"
	// ErrCodeRoomUserLimitReached 房間人數已達上限
	ErrCodeRoomUserLimitReached = "ROOM_USER_LIMIT_REACHED"
	// ErrCodeWrongPassword 房間密碼錯誤
	ErrCodeWrongPassword = "WRONG_PASSWORD"
	// ErrCodeRoomEntryRequired 尚未進入房間
	ErrCodeRoomEntryRequired = "ROOM_ENTER_REQUIRED"
	// ErrCodeNoEligibleHost 沒有可接任的房主
	ErrCodeNoEligibleHost = "NO_ELIGIBLE_HOST"
	// ErrCodeLockAcquisitionFailed 鎖獲取失敗（等待超時）
	ErrCodeLockAcquisitionFailed = "LOCK_ACQUISITION_FAILED"
	// ErrCodeLockInterrupted 等待鎖時被取消
	ErrCodeLockInterrupted = "LOCK_INTERRUPTED"
	// ErrCodeQuizNotFound 題庫不存在
	ErrCodeQuizNotFound = "QUIZ_NOT_FOUND"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is（以錯誤碼比對）
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 添加詳細資訊
func (e *AppError) WithDetails(details string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Err:     e.Err,
	}
}

// 預定義錯誤
var (
	// ErrRoomNotFound 房間不存在
	ErrRoomNotFound = New(ErrCodeRoomNotFound, "room not found")

	// ErrPlayerNotFound 玩家不在房間內
	ErrPlayerNotFound = New(ErrCodePlayerNotFound, "player not found in room")

	// ErrRoomInProgress 房間的遊戲已開始
	ErrRoomInProgress = New(ErrCodeRoomInProgress, "room game is in progress")

	// ErrRoomUserLimitReached 房間已滿
	ErrRoomUserLimitReached = New(ErrCodeRoomUserLimitReached, "room user limit reached")

	// ErrWrongPassword 密碼錯誤
	ErrWrongPassword = New(ErrCodeWrongPassword, "wrong room password")

	// ErrRoomEntryRequired 需先進入房間才能建立連線
	ErrRoomEntryRequired = New(ErrCodeRoomEntryRequired, "room entry required before socket attach")

	// ErrNoEligibleHost 沒有連線中的玩家可接任房主
	ErrNoEligibleHost = New(ErrCodeNoEligibleHost, "no eligible host candidate")

	// ErrLockAcquisitionFailed 等待鎖超時
	ErrLockAcquisitionFailed = New(ErrCodeLockAcquisitionFailed, "failed to acquire lock within wait time")

	// ErrLockInterrupted 等待鎖時上下文被取消
	ErrLockInterrupted = New(ErrCodeLockInterrupted, "lock wait interrupted")

	// ErrQuizNotFound 題庫不存在
	ErrQuizNotFound = New(ErrCodeQuizNotFound, "quiz not found")
)

// Is 轉發標準庫 errors.Is，讓呼叫端不需同時匯入兩個 errors 套件
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 轉發標準庫 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code 取出錯誤碼（非 AppError 回傳 INTERNAL_ERROR）
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsRoomNotFound 檢查是否為房間不存在錯誤
func IsRoomNotFound(err error) bool {
	return Code(err) == ErrCodeRoomNotFound
}

// IsPlayerNotFound 檢查是否為玩家不存在錯誤
func IsPlayerNotFound(err error) bool {
	return Code(err) == ErrCodePlayerNotFound
}

// IsLockAcquisitionFailed 檢查是否為鎖獲取失敗錯誤
func IsLockAcquisitionFailed(err error) bool {
	return Code(err) == ErrCodeLockAcquisitionFailed
}

// IsLockInterrupted 檢查是否為鎖等待被取消錯誤
func IsLockInterrupted(err error) bool {
	return Code(err) == ErrCodeLockInterrupted
}
