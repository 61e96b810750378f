package model

import "time"

// User 结构体表示用户模型
// 注册时创建：积分为 0、关注集合为空、未读标记为 false；账号不会被硬删除
type User struct {
	UID                 string         `json:"uid"`
	Username            string         `json:"username"`
	Name                string         `json:"name"`
	Email               string         `json:"email"`
	PasswordHash        string         `json:"password_hash,omitempty"`
	PhotoURL            string         `json:"photo_url,omitempty"`
	Country             string         `json:"country,omitempty"`
	Credits             int64          `json:"credits"`
	Followers           []string       `json:"followers"`
	Following           []string       `json:"following"`
	Notifications       []Notification `json:"notifications"`
	UnreadNotifications bool           `json:"unread_notifications"`
	CreatedAt           time.Time      `json:"created_at"`
}

// Public 返回可对外暴露的用户信息（不含密码哈希和通知列表）
func (u *User) Public() map[string]interface{} {
	return map[string]interface{}{
		"uid":       u.UID,
		"username":  u.Username,
		"name":      u.Name,
		"photo_url": u.PhotoURL,
		"country":   u.Country,
		"followers": len(u.Followers),
		"following": len(u.Following),
	}
}
