package common

import (
	"errors"

	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
)

// IsTemporary 判断是否为临时性错误
func IsTemporary(err error) bool {
	if temp, ok := err.(interface{ Temporary() bool }); ok {
		return temp.Temporary()
	}
	return false
}

// IsRetryable 判断是否可重试：版本冲突或临时性错误
func IsRetryable(err error) bool {
	return errors.Is(err, interfaces.ErrVersionConflict) || IsTemporary(err)
}

// WithRetry 通用重试机制
// 乐观事务冲突说明别的事务刚刚提交，立即基于新快照重试即可，不需要等待
func WithRetry(operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
	}
	return err
}
