package service

import (
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/service/errors"
)

// adjustCredits 在当前事务内对用户积分应用增量
// 余额不允许为负；失败时整个事务不会提交
func adjustCredits(user *model.User, delta int64) error {
	if user.Credits+delta < 0 {
		return errors.New(errors.ErrInsufficientCredits, "积分不足")
	}
	user.Credits += delta
	return nil
}
