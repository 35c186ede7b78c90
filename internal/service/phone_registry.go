package service

import (
	"context"
	"strings"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

// PhoneRegistry 号码登记：(type, number) 唯一
type PhoneRegistry struct{}

// NewPhoneRegistry 创建 PhoneRegistry
func NewPhoneRegistry() *PhoneRegistry {
	return &PhoneRegistry{}
}

// NormalizeNumber 去除首尾空白
func NormalizeNumber(number string) string {
	return strings.TrimSpace(number)
}

// FindOrCreate 查找或创建号码
// 唯一约束是最终依据：插入冲突（并发创建）时读取已存在的行
func (p *PhoneRegistry) FindOrCreate(ctx context.Context, phones repository.PhonesRepository, phoneType domain.PhoneType, number string) (*domain.Phone, error) {
	number = NormalizeNumber(number)
	if number == "" {
		return nil, domain.Validationf("phone number is required")
	}

	id, inserted, err := phones.InsertPhoneIfAbsent(ctx, phoneType, number)
	if err != nil {
		return nil, err
	}
	if inserted {
		return phones.GetPhone(ctx, id)
	}
	return phones.GetPhoneByKey(ctx, phoneType, number)
}
