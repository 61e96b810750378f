package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
)

// 文档键前缀
const (
	userKeyPrefix  = "user/"
	postKeyPrefix  = "post/"
	emailKeyPrefix = "email/"
)

func userKey(uid string) string    { return userKeyPrefix + uid }
func postKey(id string) string     { return postKeyPrefix + id }
func emailKey(email string) string { return emailKeyPrefix + email }

type stagedWrite struct {
	body    []byte
	deleted bool
}

// txn 单次乐观事务：记录读取版本、暂存写入，提交时一并校验
// 事务内的读取可以看到本事务暂存的写入
type txn struct {
	store  interfaces.DocStore
	reads  map[string]int64
	writes map[string]stagedWrite
	order  []string
}

func newTxn(store interfaces.DocStore) *txn {
	return &txn{
		store:  store,
		reads:  make(map[string]int64),
		writes: make(map[string]stagedWrite),
	}
}

func (t *txn) get(ctx context.Context, key string) ([]byte, error) {
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return nil, nil
		}
		return w.body, nil
	}

	doc, err := t.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, ok := t.reads[key]; !ok {
		t.reads[key] = doc.Version
	}
	return doc.Body, nil
}

func (t *txn) put(key string, body []byte) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = stagedWrite{body: body}
}

func (t *txn) delete(key string) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = stagedWrite{deleted: true}
}

// commit 把读取集和写入集一起交给存储层做原子提交
func (t *txn) commit(ctx context.Context) error {
	if len(t.writes) == 0 {
		return nil
	}

	// 读集按键排序，保证 MySQL 后端并发提交时按相同顺序加锁，不会互相死锁
	keys := make([]string, 0, len(t.reads))
	for key := range t.reads {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	reads := make([]interfaces.Read, 0, len(keys))
	for _, key := range keys {
		reads = append(reads, interfaces.Read{Key: key, Version: t.reads[key]})
	}

	writes := make([]interfaces.Write, 0, len(t.order))
	for _, key := range t.order {
		w := t.writes[key]
		if w.deleted {
			writes = append(writes, interfaces.Write{Key: key})
		} else {
			writes = append(writes, interfaces.Write{Key: key, Body: w.body})
		}
	}

	return t.store.Commit(ctx, reads, writes)
}

// getUser 读取用户文档，不存在时返回 nil
func (t *txn) getUser(ctx context.Context, uid string) (*model.User, error) {
	body, err := t.get(ctx, userKey(uid))
	if err != nil || body == nil {
		return nil, err
	}

	var user model.User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("解析用户文档失败: %w", err)
	}
	return &user, nil
}

func (t *txn) putUser(user *model.User) error {
	body, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("序列化用户文档失败: %w", err)
	}
	t.put(userKey(user.UID), body)
	return nil
}

// getPost 读取帖子文档，不存在时返回 nil
func (t *txn) getPost(ctx context.Context, id string) (*model.Post, error) {
	body, err := t.get(ctx, postKey(id))
	if err != nil || body == nil {
		return nil, err
	}

	var post model.Post
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, fmt.Errorf("解析帖子文档失败: %w", err)
	}
	return &post, nil
}

func (t *txn) putPost(post *model.Post) error {
	body, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("序列化帖子文档失败: %w", err)
	}
	t.put(postKey(post.ID), body)
	return nil
}

func (t *txn) deletePost(id string) {
	t.delete(postKey(id))
}

// getEmailIndex 读取邮箱索引，返回对应的 uid，不存在时返回空串
func (t *txn) getEmailIndex(ctx context.Context, email string) (string, error) {
	body, err := t.get(ctx, emailKey(email))
	if err != nil || body == nil {
		return "", err
	}

	var idx struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(body, &idx); err != nil {
		return "", fmt.Errorf("解析邮箱索引失败: %w", err)
	}
	return idx.UID, nil
}

func (t *txn) putEmailIndex(email, uid string) error {
	body, err := json.Marshal(map[string]string{"uid": uid})
	if err != nil {
		return err
	}
	t.put(emailKey(email), body)
	return nil
}
