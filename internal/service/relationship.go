package service

import (
	"context"

	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/service/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
	"go.uber.org/zap"
)

// ToggleLike 翻转点赞集合成员关系，返回新的点赞状态
// 点赞/取消点赞是纯粹的集合翻转而不是计数器：连续两次调用回到原状态
// 点赞自己的帖子不产生通知，但成员关系照常翻转
func (s *FeedService) ToggleLike(ctx context.Context, uid, postID string) (bool, error) {
	var liked bool
	err := s.runTxn(ctx, func(tx *txn) error {
		liker, err := tx.getUser(ctx, uid)
		if err != nil {
			return err
		}
		if liker == nil {
			return errors.New(errors.ErrNotFound, "用户不存在")
		}

		post, err := tx.getPost(ctx, postID)
		if err != nil {
			return err
		}
		if post == nil {
			return errors.New(errors.ErrNotFound, "帖子不存在")
		}

		author, err := tx.getUser(ctx, post.AuthorID)
		if err != nil {
			return err
		}
		if author == nil {
			return errors.New(errors.ErrNotFound, "帖子作者不存在")
		}

		if post.LikedBy(uid) {
			post.Likes = removeMember(post.Likes, uid)
			liked = false
			if uid != post.AuthorID {
				retract(author, model.NotificationLike, uid, postID)
			}
		} else {
			post.Likes = addMember(post.Likes, uid)
			liked = true
			if uid != post.AuthorID {
				notify(author, model.NotificationLike, uid, postID)
			}
		}

		if err := tx.putPost(post); err != nil {
			return err
		}
		if uid != post.AuthorID {
			return tx.putUser(author)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	util.Logger.Info("点赞状态已更新",
		zap.String("post_id", postID),
		zap.String("uid", uid),
		zap.Bool("liked", liked))
	return liked, nil
}

// ToggleFollow 翻转关注关系并保持双侧镜像一致，返回新的关注状态
// followers 和 following 两侧集合在同一个事务内一起更新
func (s *FeedService) ToggleFollow(ctx context.Context, followerUID, targetUID string) (bool, error) {
	if followerUID == targetUID {
		return false, errors.New(errors.ErrInvalidOperation, "不能关注自己")
	}

	var following bool
	err := s.runTxn(ctx, func(tx *txn) error {
		follower, err := tx.getUser(ctx, followerUID)
		if err != nil {
			return err
		}
		if follower == nil {
			return errors.New(errors.ErrNotFound, "用户不存在")
		}

		target, err := tx.getUser(ctx, targetUID)
		if err != nil {
			return err
		}
		if target == nil {
			return errors.New(errors.ErrNotFound, "目标用户不存在")
		}

		if containsMember(target.Followers, followerUID) {
			target.Followers = removeMember(target.Followers, followerUID)
			follower.Following = removeMember(follower.Following, targetUID)
			following = false
		} else {
			target.Followers = addMember(target.Followers, followerUID)
			follower.Following = addMember(follower.Following, targetUID)
			following = true
		}

		if err := tx.putUser(target); err != nil {
			return err
		}
		return tx.putUser(follower)
	})
	if err != nil {
		return false, err
	}

	util.Logger.Info("关注状态已更新",
		zap.String("follower", followerUID),
		zap.String("target", targetUID),
		zap.Bool("following", following))
	return following, nil
}

func containsMember(set []string, member string) bool {
	for _, m := range set {
		if m == member {
			return true
		}
	}
	return false
}

func addMember(set []string, member string) []string {
	if containsMember(set, member) {
		return set
	}
	return append(set, member)
}

func removeMember(set []string, member string) []string {
	for i, m := range set {
		if m == member {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}
