package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/tamimiqbalfysal/Today-2.2.5/internal/common"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/service/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
	"go.uber.org/zap"
)

// 默认的乐观事务重试次数，超过后向调用方返回冲突错误
const defaultMaxRetries = 5

// FeedService 信息流的事务协调器
// 所有写操作都是单个乐观事务：读取快照、校验前置条件、计算写入集、原子提交
// 客户端永远看不到部分写入
type FeedService struct {
	store      interfaces.DocStore
	maxRetries int
}

// NewFeedService 创建一个新的 FeedService 实例
func NewFeedService(store interfaces.DocStore) *FeedService {
	return &FeedService{
		store:      store,
		maxRetries: defaultMaxRetries,
	}
}

// runTxn 执行一次乐观事务，版本冲突时基于新快照自动重试
func (s *FeedService) runTxn(ctx context.Context, fn func(tx *txn) error) error {
	err := common.WithRetry(func() error {
		tx := newTxn(s.store)
		if err := fn(tx); err != nil {
			return err
		}
		return tx.commit(ctx)
	}, s.maxRetries)

	if err == interfaces.ErrVersionConflict {
		util.Logger.Warn("乐观事务重试次数耗尽")
		return errors.New(errors.ErrConflict, "操作冲突，请稍后重试")
	}
	return err
}

// AddComment 在帖子下追加一条评论，返回评论ID
func (s *FeedService) AddComment(ctx context.Context, uid, postID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New(errors.ErrInvalidInput, "评论内容不能为空")
	}

	commentID := util.NewID()
	err := s.runTxn(ctx, func(tx *txn) error {
		user, err := tx.getUser(ctx, uid)
		if err != nil {
			return err
		}
		if user == nil {
			return errors.New(errors.ErrNotFound, "用户不存在")
		}

		post, err := tx.getPost(ctx, postID)
		if err != nil {
			return err
		}
		if post == nil {
			return errors.New(errors.ErrNotFound, "帖子不存在")
		}

		post.Comments = append(post.Comments, model.Comment{
			ID:        commentID,
			AuthorID:  uid,
			Content:   text,
			CreatedAt: time.Now(),
		})
		return tx.putPost(post)
	})
	if err != nil {
		return "", err
	}

	util.Logger.Info("评论创建成功",
		zap.String("post_id", postID),
		zap.String("comment_id", commentID))
	return commentID, nil
}

// GetFeed 获取信息流：公开帖子加上查看者自己的私有帖子，按时间倒序
func (s *FeedService) GetFeed(ctx context.Context, viewerUID string) ([]*model.Post, error) {
	docs, err := s.store.List(ctx, postKeyPrefix)
	if err != nil {
		return nil, err
	}

	posts := make([]*model.Post, 0, len(docs))
	for _, doc := range docs {
		var post model.Post
		if err := json.Unmarshal(doc.Body, &post); err != nil {
			util.Logger.Error("解析帖子文档失败", zap.Error(err), zap.String("doc_key", doc.Key))
			continue
		}
		if post.IsPrivate && post.AuthorID != viewerUID {
			continue
		}
		posts = append(posts, &post)
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

// GetPost 获取单个帖子，私有帖子只有作者可见
func (s *FeedService) GetPost(ctx context.Context, viewerUID, postID string) (*model.Post, error) {
	doc, err := s.store.Get(ctx, postKey(postID))
	if err != nil {
		return nil, err
	}
	if doc.Body == nil {
		return nil, errors.New(errors.ErrNotFound, "帖子不存在")
	}

	var post model.Post
	if err := json.Unmarshal(doc.Body, &post); err != nil {
		return nil, err
	}
	if post.IsPrivate && post.AuthorID != viewerUID {
		return nil, errors.New(errors.ErrForbidden, "帖子已被设为私有")
	}
	return &post, nil
}

// GetUserPosts 获取某个用户的帖子列表，私有帖子只有作者本人可见
func (s *FeedService) GetUserPosts(ctx context.Context, viewerUID, authorUID string) ([]*model.Post, error) {
	posts, err := s.GetFeed(ctx, viewerUID)
	if err != nil {
		return nil, err
	}

	filtered := make([]*model.Post, 0, len(posts))
	for _, post := range posts {
		if post.AuthorID == authorUID {
			filtered = append(filtered, post)
		}
	}
	return filtered, nil
}

// GetNotifications 获取用户的通知列表（最新在前）和未读标记
func (s *FeedService) GetNotifications(ctx context.Context, uid string) ([]model.Notification, bool, error) {
	doc, err := s.store.Get(ctx, userKey(uid))
	if err != nil {
		return nil, false, err
	}
	if doc.Body == nil {
		return nil, false, errors.New(errors.ErrNotFound, "用户不存在")
	}

	var user model.User
	if err := json.Unmarshal(doc.Body, &user); err != nil {
		return nil, false, err
	}
	return user.Notifications, user.UnreadNotifications, nil
}

// MarkNotificationsRead 标记全部通知为已读并清除未读标记
func (s *FeedService) MarkNotificationsRead(ctx context.Context, uid string) error {
	return s.runTxn(ctx, func(tx *txn) error {
		user, err := tx.getUser(ctx, uid)
		if err != nil {
			return err
		}
		if user == nil {
			return errors.New(errors.ErrNotFound, "用户不存在")
		}

		for i := range user.Notifications {
			user.Notifications[i].Read = true
		}
		user.UnreadNotifications = false
		return tx.putUser(user)
	})
}
