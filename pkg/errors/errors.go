// Package errors 提供房間生命週期的錯誤分類
//
// 所有錯誤都屬於單一請求：只回覆給發起的連線，不影響房間內其他玩家。
// Message 即為送給客戶端 error 事件的字串。
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeRoomExists 房間已存在
	ErrCodeRoomExists = "ROOM_EXISTS"
	// ErrCodeNotFound 房間不存在
	ErrCodeNotFound = "ROOM_NOT_FOUND"
	// ErrCodeRoomFull 房間已滿
	ErrCodeRoomFull = "ROOM_FULL"
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

// Is 以錯誤碼比對
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

// WithDetails 回傳帶有詳細資訊的副本，預定義錯誤不會被修改
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤，Message 是協定的一部分
var (
	ErrRoomExists   = New(ErrCodeRoomExists, "Stanza già esistente")
	ErrRoomNotFound = New(ErrCodeNotFound, "Stanza non trovata")
	ErrRoomFull     = New(ErrCodeRoomFull, "Stanza piena")
	ErrInvalidInput = New(ErrCodeInvalidInput, "Richiesta non valida")
)

// ClientMessage 取出要回覆給客戶端的字串
//
// 非 AppError 一律回傳通用訊息，避免洩漏內部細節。
func ClientMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Errore interno"
}

// Code 取出錯誤碼，非 AppError 回傳 ErrCodeInternal
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsRoomExists 檢查是否為房間已存在錯誤
func IsRoomExists(err error) bool {
	return Code(err) == ErrCodeRoomExists
}

// IsNotFound 檢查是否為房間不存在錯誤
func IsNotFound(err error) bool {
	return Code(err) == ErrCodeNotFound
}

// IsRoomFull 檢查是否為房間已滿錯誤
func IsRoomFull(err error) bool {
	return Code(err) == ErrCodeRoomFull
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	return Code(err) == ErrCodeInvalidInput
}
