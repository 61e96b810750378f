package service

import (
	"time"

	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
)

// notify 向接收者追加一条通知并置未读标记，和触发它的关系变更同一个事务提交
// 通知列表保持最新在前；kind+sender+post 三元组在列表中唯一，重复触发只刷新时间
func notify(recipient *model.User, kind, senderUID, postID string) {
	retract(recipient, kind, senderUID, postID)
	n := model.Notification{
		ID:        util.NewID(),
		Kind:      kind,
		SenderID:  senderUID,
		PostID:    postID,
		Timestamp: time.Now(),
	}
	recipient.Notifications = append([]model.Notification{n}, recipient.Notifications...)
	recipient.UnreadNotifications = true
}

// retract 删除匹配 kind+sender+post 三元组的那一条通知（如果存在）
// 取消点赞时撤回之前的点赞通知
func retract(recipient *model.User, kind, senderUID, postID string) {
	for i, n := range recipient.Notifications {
		if n.Kind == kind && n.SenderID == senderUID && n.PostID == postID {
			recipient.Notifications = append(recipient.Notifications[:i], recipient.Notifications[i+1:]...)
			return
		}
	}
}
