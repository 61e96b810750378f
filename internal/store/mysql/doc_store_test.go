package mysql

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestIsLockContention(t *testing.T) {
	// InnoDB 死锁和锁等待超时都视为锁竞争，上层按版本冲突重试
	assert.True(t, isLockContention(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}))
	assert.True(t, isLockContention(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}))
	// 被包装过的驱动错误同样能识别
	assert.True(t, isLockContention(fmt.Errorf("提交失败: %w", &mysql.MySQLError{Number: 1213})))

	assert.False(t, isLockContention(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, isLockContention(sql.ErrConnDone))
	assert.False(t, isLockContention(nil))
}
