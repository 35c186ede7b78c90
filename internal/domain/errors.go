package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Repositories and services wrap these so callers can use errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrLimitExceeded = errors.New("limit exceeded")
	ErrDataIntegrity = errors.New("data integrity error")
	ErrForbidden     = errors.New("forbidden")
)

// LimitExceededError 号码关联数超过上限
type LimitExceededError struct {
	Limit  int
	Number string
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit %d exceeded for number %s", e.Limit, e.Number)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Validationf 构造校验错误
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf 构造不存在错误
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Integrityf 构造数据完整性错误
func Integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataIntegrity, fmt.Sprintf(format, args...))
}

// IsBusinessError 行级可恢复错误（导入时按行收集而非中断）
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrLimitExceeded) || errors.Is(err, ErrNotFound)
}
