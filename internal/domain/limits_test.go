package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDepartmentName(t *testing.T) {
	assert.NoError(t, ValidateDepartmentName("R&D"))
	assert.ErrorIs(t, ValidateDepartmentName(""), ErrValidation)
	assert.ErrorIs(t, ValidateDepartmentName("R&D/QA"), ErrValidation)
	assert.ErrorIs(t, ValidateDepartmentName(strings.Repeat("x", MaxDepartmentNameLength+1)), ErrValidation)
	// 按字符计数
	assert.NoError(t, ValidateDepartmentName(strings.Repeat("я", MaxDepartmentNameLength)))
}

func TestValidatePhoneNumber(t *testing.T) {
	assert.NoError(t, ValidatePhoneNumber("123-45-67"))
	assert.ErrorIs(t, ValidatePhoneNumber(""), ErrValidation)
	assert.ErrorIs(t, ValidatePhoneNumber("101;102"), ErrValidation)
	assert.ErrorIs(t, ValidatePhoneNumber(strings.Repeat("1", MaxPhoneNumberLength+1)), ErrValidation)
}

func TestValidateFullNameAndLabel(t *testing.T) {
	assert.ErrorIs(t, ValidateFullName(""), ErrValidation)
	assert.ErrorIs(t, ValidateFullName(strings.Repeat("a", MaxFullNameLength+1)), ErrValidation)
	assert.NoError(t, ValidatePhoneLabel(""))
	assert.ErrorIs(t, ValidatePhoneLabel(strings.Repeat("a", MaxPhoneLabelLength+1)), ErrValidation)
}
