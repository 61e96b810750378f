package service

import (
	"context"
	"strings"
	"time"

	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/service/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
	"go.uber.org/zap"
)

// 发帖固定奖励
const postReward = 10

// CreatePost 创建帖子并托管防御积分
// 同一个事务内：扣除防御积分、发放固定奖励（净变化 10 - defenceCredit，可能为负）、
// 以公开状态写入帖子。余额不足以承担净扣除时整个事务失败
func (s *FeedService) CreatePost(ctx context.Context, authorUID, content, mediaRef, mediaType string, defenceCredit int64) (string, error) {
	if defenceCredit < 0 {
		return "", errors.New(errors.ErrInvalidInput, "防御积分不能为负")
	}
	if strings.TrimSpace(content) == "" && mediaRef == "" {
		return "", errors.New(errors.ErrInvalidInput, "帖子内容不能为空")
	}

	postID := util.NewID()
	err := s.runTxn(ctx, func(tx *txn) error {
		author, err := tx.getUser(ctx, authorUID)
		if err != nil {
			return err
		}
		if author == nil {
			return errors.New(errors.ErrNotFound, "用户不存在")
		}

		if err := adjustCredits(author, postReward-defenceCredit); err != nil {
			return err
		}

		post := &model.Post{
			ID:            postID,
			AuthorID:      authorUID,
			Content:       content,
			MediaRef:      mediaRef,
			MediaType:     mediaType,
			CreatedAt:     time.Now(),
			Likes:         []string{},
			Comments:      []model.Comment{},
			DefenceCredit: defenceCredit,
			IsPrivate:     false,
		}

		if err := tx.putPost(post); err != nil {
			return err
		}
		return tx.putUser(author)
	})
	if err != nil {
		return "", err
	}

	util.Logger.Info("帖子创建成功",
		zap.String("post_id", postID),
		zap.String("author", authorUID),
		zap.Int64("defence_credit", defenceCredit))
	return postID, nil
}

// Challenge 用进攻积分把别人的帖子设为私有
// 进攻积分必须严格大于帖子当前的防御积分；成功时攻击者被扣除全部进攻积分，
// 作者只收到挑战前的托管防御积分，差额直接退出流通（产品如此设计）
func (s *FeedService) Challenge(ctx context.Context, attackerUID, postID string, offenceCredit int64) error {
	err := s.runTxn(ctx, func(tx *txn) error {
		post, err := tx.getPost(ctx, postID)
		if err != nil {
			return err
		}
		if post == nil {
			return errors.New(errors.ErrNotFound, "帖子不存在")
		}

		if attackerUID == post.AuthorID {
			return errors.New(errors.ErrInvalidChallenge, "不能对自己的帖子使用进攻积分")
		}
		if offenceCredit <= post.DefenceCredit {
			return errors.New(errors.ErrInvalidChallenge, "进攻积分必须大于帖子的防御积分")
		}

		attacker, err := tx.getUser(ctx, attackerUID)
		if err != nil {
			return err
		}
		if attacker == nil {
			return errors.New(errors.ErrNotFound, "用户不存在")
		}

		author, err := tx.getUser(ctx, post.AuthorID)
		if err != nil {
			return err
		}
		if author == nil {
			return errors.New(errors.ErrNotFound, "帖子作者不存在")
		}

		if err := adjustCredits(attacker, -offenceCredit); err != nil {
			return err
		}
		if err := adjustCredits(author, post.DefenceCredit); err != nil {
			return err
		}

		post.IsPrivate = true
		notify(author, model.NotificationPostMadePrivate, attackerUID, postID)

		if err := tx.putPost(post); err != nil {
			return err
		}
		if err := tx.putUser(attacker); err != nil {
			return err
		}
		return tx.putUser(author)
	})
	if err != nil {
		return err
	}

	util.Logger.Info("帖子已被设为私有",
		zap.String("post_id", postID),
		zap.String("attacker", attackerUID),
		zap.Int64("offence_credit", offenceCredit))
	return nil
}

// Restore 作者追加防御积分把私有帖子恢复为公开
// 只有作者可以调用，且帖子必须处于私有状态
func (s *FeedService) Restore(ctx context.Context, authorUID, postID string, topUp int64) error {
	if topUp < 0 {
		return errors.New(errors.ErrInvalidInput, "追加的防御积分不能为负")
	}

	err := s.runTxn(ctx, func(tx *txn) error {
		post, err := tx.getPost(ctx, postID)
		if err != nil {
			return err
		}
		if post == nil {
			return errors.New(errors.ErrNotFound, "帖子不存在")
		}

		if post.AuthorID != authorUID {
			return errors.New(errors.ErrForbidden, "只有作者可以恢复帖子")
		}
		if !post.IsPrivate {
			return errors.New(errors.ErrInvalidOperation, "帖子已经是公开状态")
		}

		author, err := tx.getUser(ctx, authorUID)
		if err != nil {
			return err
		}
		if author == nil {
			return errors.New(errors.ErrNotFound, "用户不存在")
		}

		if err := adjustCredits(author, -topUp); err != nil {
			return err
		}

		post.DefenceCredit += topUp
		post.IsPrivate = false
		// 系统通知：告知作者帖子已恢复公开
		notify(author, model.NotificationPostMadePublic, authorUID, postID)

		if err := tx.putPost(post); err != nil {
			return err
		}
		return tx.putUser(author)
	})
	if err != nil {
		return err
	}

	util.Logger.Info("帖子已恢复公开",
		zap.String("post_id", postID),
		zap.Int64("top_up", topUp))
	return nil
}

// DeletePost 删除帖子，先把当前托管的防御积分退还作者
// 返回帖子的媒体引用，调用方在事务提交后尽力删除媒体对象
func (s *FeedService) DeletePost(ctx context.Context, requesterUID, postID string) (string, error) {
	var mediaRef string
	err := s.runTxn(ctx, func(tx *txn) error {
		post, err := tx.getPost(ctx, postID)
		if err != nil {
			return err
		}
		if post == nil {
			return errors.New(errors.ErrNotFound, "帖子不存在")
		}

		if post.AuthorID != requesterUID {
			return errors.New(errors.ErrForbidden, "只能删除自己的帖子")
		}

		author, err := tx.getUser(ctx, requesterUID)
		if err != nil {
			return err
		}
		if author == nil {
			return errors.New(errors.ErrNotFound, "用户不存在")
		}

		if post.DefenceCredit > 0 {
			if err := adjustCredits(author, post.DefenceCredit); err != nil {
				return err
			}
			if err := tx.putUser(author); err != nil {
				return err
			}
		}

		mediaRef = post.MediaRef
		tx.deletePost(postID)
		return nil
	})
	if err != nil {
		return "", err
	}

	util.Logger.Info("帖子删除成功", zap.String("post_id", postID))
	return mediaRef, nil
}
