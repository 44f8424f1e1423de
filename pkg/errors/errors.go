package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode int

const (
	// Kafka相关错误 1xxx
	ErrCodeKafkaConnect ErrorCode = 1001
	ErrCodeKafkaConsume ErrorCode = 1002
	ErrCodeKafkaOffsets ErrorCode = 1003

	// Reader相关错误 2xxx
	ErrCodeConfiguration    ErrorCode = 2001 // 分片非法或连接无法建立
	ErrCodeExhaustedRetries ErrorCode = 2002 // 空拉取次数超过上限
	ErrCodeIllegalState     ErrorCode = 2003 // API误用

	// Split相关错误 3xxx
	ErrCodeManifestEncode ErrorCode = 3001
	ErrCodeManifestDecode ErrorCode = 3002

	// Doris相关错误 4xxx
	ErrCodeDorisConnect    ErrorCode = 4001
	ErrCodeDorisStreamLoad ErrorCode = 4002
	ErrCodeDorisQuery      ErrorCode = 4003
	ErrCodeFileWrite       ErrorCode = 4004
	ErrCodeFieldMapping    ErrorCode = 4005
	ErrCodeTypeConvert     ErrorCode = 4006

	// 配置相关错误 5xxx
	ErrCodeConfigLoad     ErrorCode = 5001
	ErrCodeConfigValidate ErrorCode = 5002
)

// Error 自定义错误类型
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建新错误
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf 创建带格式化信息的错误
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf 返回错误链中第一个自定义错误的错误码，没有则返回0
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Is 判断错误链中是否包含指定错误码
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsConfiguration 是否为配置错误（分片非法或连接失败）
func IsConfiguration(err error) bool {
	return Is(err, ErrCodeConfiguration)
}

// IsExhaustedRetries 是否为重试耗尽错误
func IsExhaustedRetries(err error) bool {
	return Is(err, ErrCodeExhaustedRetries)
}

// IsIllegalState 是否为状态错误
func IsIllegalState(err error) bool {
	return Is(err, ErrCodeIllegalState)
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch CodeOf(err) {
	case ErrCodeKafkaConnect, ErrCodeKafkaConsume, ErrCodeExhaustedRetries,
		ErrCodeDorisConnect, ErrCodeDorisStreamLoad:
		return true
	default:
		return false
	}
}
