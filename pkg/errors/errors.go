// Package errors 定义了带错误码的应用错误类型。
// service 层返回 *AppError，handler 层根据 Code 映射为 HTTP 状态码。
package errors

import (
	"errors"
	"fmt"
)

// AppError 是贯穿各层的统一错误载体。
// Cause 仅用于日志和 errors.Unwrap，不会序列化给调用方。
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// New 构造一个不带底层错误的 AppError。
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap 构造一个携带底层错误的 AppError。
func Wrap(code Code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// CodeOf 提取错误链中的错误码；链上没有 AppError 时视为 INTERNAL。
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is 判断错误是否携带指定错误码。
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// 常用构造函数

func InvalidArg(msg string) *AppError {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) *AppError {
	return New(CodeNotFound, msg)
}

func Unauthorized(msg string) *AppError {
	return New(CodeUnauthenticated, msg)
}

func Forbidden(msg string) *AppError {
	return New(CodePermissionDenied, msg)
}

func Internal(msg string) *AppError {
	return New(CodeInternal, msg)
}

func IncompleteProfile(msg string) *AppError {
	return New(CodeIncompleteProfile, msg)
}

func ScoringFailed(msg string, cause error) *AppError {
	return Wrap(CodeScoringFailed, msg, cause)
}

func ScorerUnavailable(msg string) *AppError {
	return New(CodeScorerUnavailable, msg)
}

func ConversationInactive(msg string) *AppError {
	return New(CodeConversationInactive, msg)
}

func AlreadyModerated(msg string) *AppError {
	return New(CodeAlreadyModerated, msg)
}
