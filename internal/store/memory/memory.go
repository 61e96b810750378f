package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
)

type entry struct {
	body    []byte
	version int64
}

type subscriber struct {
	prefix string
	ch     chan interfaces.Event
}

// Store 内存文档存储，默认后端，也是测试使用的存储
type Store struct {
	mu      sync.RWMutex
	docs    map[string]*entry
	subs    map[int]*subscriber
	nextSub int
}

func NewStore() *Store {
	return &Store{
		docs: make(map[string]*entry),
		subs: make(map[int]*subscriber),
	}
}

func (s *Store) Get(ctx context.Context, key string) (interfaces.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.docs[key]
	if !ok {
		return interfaces.Document{Key: key}, nil
	}
	return interfaces.Document{Key: key, Body: cloneBytes(e.body), Version: e.version}, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]interfaces.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []interfaces.Document
	for key, e := range s.docs {
		// body 为 nil 的条目是删除墓碑
		if strings.HasPrefix(key, prefix) && e.body != nil {
			docs = append(docs, interfaces.Document{Key: key, Body: cloneBytes(e.body), Version: e.version})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// Commit 校验所有读取版本后原子应用全部写入
func (s *Store) Commit(ctx context.Context, reads []interfaces.Read, writes []interfaces.Write) error {
	s.mu.Lock()

	for _, r := range reads {
		var current int64
		if e, ok := s.docs[r.Key]; ok {
			current = e.version
		}
		if current != r.Version {
			s.mu.Unlock()
			return interfaces.ErrVersionConflict
		}
	}

	events := make([]interfaces.Event, 0, len(writes))
	for _, w := range writes {
		var version int64 = 1
		if e, ok := s.docs[w.Key]; ok {
			version = e.version + 1
		}
		if w.Body == nil {
			// 删除保留墓碑，版本号继续单调递增：同键先删后建不会让过期读通过校验
			s.docs[w.Key] = &entry{version: version}
			events = append(events, interfaces.Event{Key: w.Key, Version: version, Deleted: true})
			continue
		}
		s.docs[w.Key] = &entry{body: cloneBytes(w.Body), version: version}
		events = append(events, interfaces.Event{Key: w.Key, Body: cloneBytes(w.Body), Version: version})
	}

	// 持锁分发，保证不会向已关闭的订阅通道发送
	for _, sub := range s.subs {
		for _, ev := range events {
			if !strings.HasPrefix(ev.Key, sub.prefix) {
				continue
			}
			// 订阅者消费太慢时丢弃事件，提交不能被阻塞
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
	s.mu.Unlock()
	return nil
}

// Subscribe 订阅指定前缀的文档变更
func (s *Store) Subscribe(prefix string) (<-chan interfaces.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	sub := &subscriber{prefix: prefix, ch: make(chan interfaces.Event, 16)}
	s.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(sub.ch)
			s.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
