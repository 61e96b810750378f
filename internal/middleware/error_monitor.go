package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/errors"
	"go.uber.org/zap"
)

type ErrorMonitor struct {
	errorCounts map[errors.ErrorCode]int
	analytics   *errors.ErrorAnalytics
	mu          sync.RWMutex
}

func NewErrorMonitor() *ErrorMonitor {
	return &ErrorMonitor{
		errorCounts: make(map[errors.ErrorCode]int),
		analytics:   errors.NewErrorAnalytics(),
	}
}

func (m *ErrorMonitor) RecordError(err error, ctx errors.ErrorContext) {
	if appErr, ok := err.(*errors.AppError); ok {
		m.mu.Lock()
		m.errorCounts[appErr.Code]++
		m.mu.Unlock()
	}
	m.analytics.Record(errors.NewTracedError(err, ctx))
}

func (m *ErrorMonitor) GetErrorCounts() map[errors.ErrorCode]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[errors.ErrorCode]int)
	for code, count := range m.errorCounts {
		counts[code] = count
	}
	return counts
}

// GetStats 返回聚合的错误统计信息，用于调试接口
func (m *ErrorMonitor) GetStats() map[string]interface{} {
	stats := m.analytics.GetStats()
	stats["counts_by_code"] = m.GetErrorCounts()
	return stats
}

func ErrorMonitorMiddleware(monitor *ErrorMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			ctx := errors.ErrorContext{
				UID:       c.GetString("uid"),
				Path:      c.Request.URL.Path,
				Method:    c.Request.Method,
				Timestamp: time.Now(),
			}
			for _, e := range c.Errors {
				monitor.RecordError(e.Err, ctx)
				// 记录错误日志
				if appErr, ok := e.Err.(*errors.AppError); ok {
					zap.L().Error("请求处理错误",
						zap.Int("error_code", int(appErr.Code)),
						zap.String("error_message", appErr.Message),
						zap.Error(appErr.Err),
						zap.String("path", c.Request.URL.Path),
						zap.String("method", c.Request.Method))
				}
			}
		}
	}
}
