package util

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestValidateCreditAmount(t *testing.T) {
	v := validator.New()
	assert.NoError(t, v.RegisterValidation("credit_amount", ValidateCreditAmount))

	type request struct {
		Amount int64 `validate:"credit_amount"`
	}

	// 积分数额必须为非负整数
	assert.NoError(t, v.Struct(request{Amount: 0}))
	assert.NoError(t, v.Struct(request{Amount: 8}))
	assert.Error(t, v.Struct(request{Amount: -1}))
}
