package util

import (
	"github.com/go-playground/validator/v10"
)

// ValidateCreditAmount 验证积分数额为非负整数
func ValidateCreditAmount(fl validator.FieldLevel) bool {
	amount, ok := fl.Field().Interface().(int64)
	if !ok {
		return false
	}
	return amount >= 0
}
