package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	svcerrors "github.com/tamimiqbalfysal/Today-2.2.5/internal/service/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/memory"
)

// captureStore 记录每次提交的读集键顺序
type captureStore struct {
	*memory.Store
	mu       sync.Mutex
	readSets [][]string
}

func (s *captureStore) Commit(ctx context.Context, reads []interfaces.Read, writes []interfaces.Write) error {
	keys := make([]string, 0, len(reads))
	for _, r := range reads {
		keys = append(keys, r.Key)
	}
	s.mu.Lock()
	s.readSets = append(s.readSets, keys)
	s.mu.Unlock()
	return s.Store.Commit(ctx, reads, writes)
}

// conflictStore 的提交永远返回版本冲突
type conflictStore struct {
	inner   *memory.Store
	commits int32
}

func (s *conflictStore) Get(ctx context.Context, key string) (interfaces.Document, error) {
	return s.inner.Get(ctx, key)
}

func (s *conflictStore) List(ctx context.Context, prefix string) ([]interfaces.Document, error) {
	return s.inner.List(ctx, prefix)
}

func (s *conflictStore) Commit(ctx context.Context, reads []interfaces.Read, writes []interfaces.Write) error {
	atomic.AddInt32(&s.commits, 1)
	return interfaces.ErrVersionConflict
}

// 读集必须按键排序提交：MySQL 后端按这个顺序逐行加锁，
// 顺序不一致的并发提交会在 InnoDB 里互相死锁
func TestCommit_ReadKeysSorted(t *testing.T) {
	mem := memory.NewStore()
	store := &captureStore{Store: mem}
	svc := NewFeedService(store)

	seedUser(t, mem, "alice", 0)
	seedUser(t, mem, "carol", 30)

	postID, err := svc.CreatePost(context.Background(), "alice", "defended", "", "", 5)
	assert.NoError(t, err)
	// Challenge 同时读取帖子、攻击者和作者三个文档
	assert.NoError(t, svc.Challenge(context.Background(), "carol", postID, 10))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotEmpty(t, store.readSets)

	var sawMultiKey bool
	for _, keys := range store.readSets {
		assert.True(t, sort.StringsAreSorted(keys), "读集乱序: %v", keys)
		if len(keys) >= 3 {
			sawMultiKey = true
		}
	}
	assert.True(t, sawMultiKey, "没有捕获到多文档事务的读集")
}

// 重试预算耗尽后冲突以 ErrConflict 上报，而不是内部错误
func TestRunTxn_RetryBudgetExhausted(t *testing.T) {
	mem := memory.NewStore()
	store := &conflictStore{inner: mem}
	svc := NewFeedService(store)

	seedUser(t, mem, "alice", 0)

	_, err := svc.CreatePost(context.Background(), "alice", "hello", "", "", 0)
	assert.Error(t, err)
	assert.True(t, svcerrors.IsCode(err, svcerrors.ErrConflict))
	assert.Equal(t, int32(defaultMaxRetries), atomic.LoadInt32(&store.commits))
}
