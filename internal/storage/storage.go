package storage

import "context"

// MediaStorage 媒体对象存储接口
// 媒体写入在事务之外尽力而为：上传在提交前，删除在提交后
type MediaStorage interface {
	Put(ctx context.Context, data []byte, contentType, path string) (string, error)
	Delete(ctx context.Context, ref string) error
}
