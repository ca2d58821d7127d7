package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode 表示错误码类型
type ErrorCode int

// 定义应用程序的错误码
const (
	// 通用错误
	ErrUnknown ErrorCode = iota + 1000
	ErrInvalidParameter

	// 输入格式错误（可恢复，不修改任何状态）
	ErrMalformedInput
	ErrChecksumMismatch
	ErrLengthMismatch
	ErrUnknownLabel
	ErrInvalidMesh

	// 身份/认证失败
	ErrVehicleNotFound
	ErrIdentityMismatch
	ErrAuthFailed

	// 编码约束违反（本次响应失败）
	ErrEncodeConstraint

	// 外部协作方失败
	ErrExternalFailure

	// 命令状态冲突
	ErrCommandConflict
)

var codeNames = map[ErrorCode]string{
	ErrUnknown:          "unknown",
	ErrInvalidParameter: "invalid_parameter",
	ErrMalformedInput:   "malformed_input",
	ErrChecksumMismatch: "checksum_mismatch",
	ErrLengthMismatch:   "length_mismatch",
	ErrUnknownLabel:     "unknown_label",
	ErrInvalidMesh:      "invalid_mesh",
	ErrVehicleNotFound:  "vehicle_not_found",
	ErrIdentityMismatch: "identity_mismatch",
	ErrAuthFailed:       "auth_failed",
	ErrEncodeConstraint: "encode_constraint",
	ErrExternalFailure:  "external_failure",
	ErrCommandConflict:  "command_conflict",
}

// String 返回错误码的可读名称，用于日志和指标标签
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// AppError 应用程序自定义错误类型
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持Go 1.13+的错误包装
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New 创建一个新的AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf 以格式化消息创建AppError
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装一个已有的错误
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf 返回错误链上第一个AppError的错误码，没有则返回ErrUnknown
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrUnknown
}

// IsErrCode 检查错误链中是否存在指定错误码的AppError
func IsErrCode(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
