package util

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewID 生成实体ID（用户、帖子、评论、通知）
func NewID() string {
	return uuid.NewString()
}

// GenerateUniqueFilename 生成唯一的文件名
func GenerateUniqueFilename(originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	name := filepath.Base(originalFilename)
	name = name[:len(name)-len(ext)]

	timestamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	return name + "_" + timestamp + ext
}
