package domain

import (
	"strings"
	"unicode/utf8"
)

// 字段长度上限（与 migrations 中的 VARCHAR 一致）
const (
	MaxDepartmentNameLength = 255
	MaxFullNameLength       = 255
	MaxPhoneNumberLength    = 50
	MaxPhoneLabelLength     = 50
	MaxLoginLength          = 50
)

// 导入导出使用的分隔符，不能出现在对应字段中
const (
	DepartmentPathDelimiter = "/"
	PhoneListDelimiter      = ";"
)

func checkLength(field, value string, max int) error {
	if n := utf8.RuneCountInString(value); n > max {
		return Validationf("%s is too long (%d > %d characters)", field, n, max)
	}
	return nil
}

// ValidateDepartmentName 非空、不含路径分隔符、不超长
func ValidateDepartmentName(name string) error {
	if name == "" {
		return Validationf("department name is required")
	}
	if strings.Contains(name, DepartmentPathDelimiter) {
		return Validationf("department name %q must not contain %q", name, DepartmentPathDelimiter)
	}
	return checkLength("department name", name, MaxDepartmentNameLength)
}

// ValidateFullName 非空、不超长
func ValidateFullName(name string) error {
	if name == "" {
		return Validationf("full name is required")
	}
	return checkLength("full name", name, MaxFullNameLength)
}

// ValidatePhoneNumber 非空、不含号码列表分隔符、不超长
func ValidatePhoneNumber(number string) error {
	if number == "" {
		return Validationf("number is required")
	}
	if strings.Contains(number, PhoneListDelimiter) {
		return Validationf("number %q must not contain %q", number, PhoneListDelimiter)
	}
	return checkLength("number", number, MaxPhoneNumberLength)
}

// ValidatePhoneLabel 可为空
func ValidatePhoneLabel(label string) error {
	return checkLength("label", label, MaxPhoneLabelLength)
}
