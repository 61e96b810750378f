package interfaces

import (
	"context"
	"errors"
)

// ErrVersionConflict 提交时读取过的文档已被其他事务修改
var ErrVersionConflict = errors.New("document version conflict")

// Document 带版本号的文档，Body 为 nil 表示文档不存在
// 从未写入过的键版本为 0；已删除的键保留单调递增的版本号
type Document struct {
	Key     string
	Body    []byte
	Version int64
}

// Read 记录事务读取时观察到的版本号
type Read struct {
	Key     string
	Version int64
}

// Write 事务要提交的写入，Body 为 nil 表示删除
type Write struct {
	Key  string
	Body []byte
}

// Event 文档变更事件
type Event struct {
	Key     string
	Body    []byte
	Version int64
	Deleted bool
}

// DocStore 定义了键值文档存储接口
// Commit 只有在所有读取过的文档版本未变化时才会生效，否则返回 ErrVersionConflict
type DocStore interface {
	Get(ctx context.Context, key string) (Document, error)
	List(ctx context.Context, prefix string) ([]Document, error)
	Commit(ctx context.Context, reads []Read, writes []Write) error
}

// Watcher 定义了存储边界上的订阅接口
// 取消函数必须可以重复调用
type Watcher interface {
	Subscribe(prefix string) (<-chan Event, func())
}
