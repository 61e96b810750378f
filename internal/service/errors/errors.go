package errors

import "fmt"

// ServiceError 定义服务层错误
type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// ErrorCode 定义错误码类型
type ErrorCode int

const (
	// 积分不足，账本不变更
	ErrInsufficientCredits ErrorCode = iota + 1000
	// 调用者对目标实体没有权限
	ErrForbidden
	// 引用的帖子或用户不存在
	ErrNotFound
	// 前置条件不满足
	ErrInvalidOperation
	ErrInvalidChallenge
	ErrInvalidInput
	// 乐观事务重试次数耗尽
	ErrConflict
)

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// New 创建新的服务错误
func New(code ErrorCode, message string) error {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装已有错误
func Wrap(code ErrorCode, message string, err error) error {
	return &ServiceError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsServiceError 判断是否为服务错误
func IsServiceError(err error) bool {
	_, ok := err.(*ServiceError)
	return ok
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	if se, ok := err.(*ServiceError); ok {
		return se.Code
	}
	return 0
}

// IsCode 判断错误是否为指定错误码
func IsCode(err error, code ErrorCode) bool {
	se, ok := err.(*ServiceError)
	return ok && se.Code == code
}
