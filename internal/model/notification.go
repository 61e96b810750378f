package model

import "time"

// 通知类型
const (
	NotificationLike            = "like"
	NotificationPostMadePrivate = "post-made-private"
	NotificationPostMadePublic  = "post-made-public"
)

// Notification 归属于接收者用户，只能由关注/可见性操作间接创建
// kind+sender+post 三元组在单个用户的通知列表中唯一
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	SenderID  string    `json:"sender_id"`
	PostID    string    `json:"post_id"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}
