package model

import "time"

type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	Content       string    `json:"content"`
	MediaRef      string    `json:"media_ref,omitempty"`
	MediaType     string    `json:"media_type,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Likes         []string  `json:"likes"`
	Comments      []Comment `json:"comments"`
	DefenceCredit int64     `json:"defence_credit"`
	IsPrivate     bool      `json:"is_private"`
}

// Comment 归属于帖子，创建后不再修改
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// LikedBy 判断用户是否已点赞
func (p *Post) LikedBy(uid string) bool {
	for _, id := range p.Likes {
		if id == uid {
			return true
		}
	}
	return false
}
